package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apifunc/go-apifunc/pkg/manifest"
)

func TestValidateAppliesDefaults(t *testing.T) {
	var c manifest.Config
	require.NoError(t, c.Validate())
	require.Equal(t, manifest.DefaultProtoDir, c.ProtoDir)
	require.Equal(t, manifest.DefaultGeneratedDir, c.GeneratedDir)
	require.Equal(t, manifest.DefaultPort, c.Port)
	require.Equal(t, manifest.DefaultMaxWorkers, c.MaxWorkers)
	require.Equal(t, manifest.DefaultListen, c.Listen)
}

func TestValidateStageDefaults(t *testing.T) {
	c := manifest.Config{Stages: []manifest.Stage{{Name: "upper"}}}
	require.NoError(t, c.Validate())
	require.Equal(t, manifest.ModeNetworked, c.Stages[0].Mode)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		cfg     manifest.Config
		wantErr string
	}{
		{
			name:    "bad port",
			cfg:     manifest.Config{Port: 70000},
			wantErr: "out of range",
		},
		{
			name:    "negative workers",
			cfg:     manifest.Config{MaxWorkers: -1},
			wantErr: "max_workers",
		},
		{
			name:    "unnamed stage",
			cfg:     manifest.Config{Stages: []manifest.Stage{{}}},
			wantErr: "name required",
		},
		{
			name: "duplicate stage name",
			cfg: manifest.Config{Stages: []manifest.Stage{
				{Name: "upper"}, {Name: "upper"},
			}},
			wantErr: "duplicate name",
		},
		{
			name:    "unknown mode",
			cfg:     manifest.Config{Stages: []manifest.Stage{{Name: "upper", Mode: "broadcast"}}},
			wantErr: "unknown mode",
		},
		{
			name: "port collision",
			cfg: manifest.Config{Stages: []manifest.Stage{
				{Name: "a", Port: 50051}, {Name: "b", Port: 50051},
			}},
			wantErr: "already assigned",
		},
		{
			name:    "target on local stage",
			cfg:     manifest.Config{Stages: []manifest.Stage{{Name: "a", Mode: "local", Target: "10.0.0.5:50051"}}},
			wantErr: "requires networked mode",
		},
		{
			name:    "target with port",
			cfg:     manifest.Config{Stages: []manifest.Stage{{Name: "a", Target: "10.0.0.5:50051", Port: 50051}}},
			wantErr: "mutually exclusive",
		},
		{
			name:    "negative timeout",
			cfg:     manifest.Config{Stages: []manifest.Stage{{Name: "upper", TimeoutMS: -5}}},
			wantErr: "timeout_ms",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorContains(t, tc.cfg.Validate(), tc.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apifunc.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
proto_dir = "p"
listen = ":5000"

[[stage]]
name = "json_to_html"
port = 50053

[[stage]]
name = "html_to_pdf"
mode = "local"
timeout_ms = 2500
`), 0o644))

	c, err := manifest.Load(path)
	require.NoError(t, err)
	require.Equal(t, "p", c.ProtoDir)
	require.Equal(t, ":5000", c.Listen)
	require.Len(t, c.Stages, 2)
	require.Equal(t, manifest.ModeNetworked, c.Stages[0].Mode)
	require.Equal(t, 50053, c.Stages[0].Port)
	require.Equal(t, manifest.ModeLocal, c.Stages[1].Mode)
	require.Equal(t, 2500, c.Stages[1].TimeoutMS)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := manifest.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("stage = [broken"), 0o644))
	_, err := manifest.Load(path)
	require.Error(t, err)
}
