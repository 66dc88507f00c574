// manifest/manifest.go
package manifest

import (
	"fmt"
	"strings"
)

/* ===========================
   Top-level config
   =========================== */

// Config is the runtime manifest: codegen directories, endpoint defaults and
// the ordered stage list that becomes the pipeline.
type Config struct {
	ProtoDir     string `toml:"proto_dir"`
	GeneratedDir string `toml:"generated_dir"`
	IncludeDir   string `toml:"include_dir"` // optional shared schema imports
	Protoc       string `toml:"protoc"`      // toolchain binary, default "protoc"

	Port       int    `toml:"port"`        // default base port for endpoints
	MaxWorkers int    `toml:"max_workers"` // per-endpoint worker pool
	Listen     string `toml:"listen"`      // gateway listen address

	Stages []Stage `toml:"stage"`
}

/* ===========================
   Pipeline stages
   =========================== */

// StageMode selects in-process vs networked invocation for one stage.
type StageMode string

const (
	ModeLocal     StageMode = "local"
	ModeNetworked StageMode = "networked"
)

type Stage struct {
	Name      string    `toml:"name"`
	Mode      StageMode `toml:"mode"`
	Port      int       `toml:"port"`       // 0 = auto-assign
	Target    string    `toml:"target"`     // host:port of an externally run service
	TimeoutMS int       `toml:"timeout_ms"` // 0 = no per-stage deadline
}

// Remote reports whether the stage calls a service this process does not own.
func (s *Stage) Remote() bool { return s.Target != "" }

/* ===========================
   Defaults / validation
   =========================== */

const (
	DefaultProtoDir     = "proto"
	DefaultGeneratedDir = "generated"
	DefaultPort         = 50051
	DefaultMaxWorkers   = 10
	DefaultListen       = ":4000"
)

// Validate normalizes defaults and rejects inconsistent manifests.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProtoDir) == "" {
		c.ProtoDir = DefaultProtoDir
	}
	if strings.TrimSpace(c.GeneratedDir) == "" {
		c.GeneratedDir = DefaultGeneratedDir
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be >= 0")
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}

	seen := make(map[string]struct{}, len(c.Stages))
	ports := make(map[int]string, len(c.Stages))
	for i := range c.Stages {
		st := &c.Stages[i]
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("stage %d: name required", i)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("stage %d: duplicate name %q", i, st.Name)
		}
		seen[st.Name] = struct{}{}

		if st.Mode == "" {
			st.Mode = ModeNetworked
		}
		if st.Mode != ModeLocal && st.Mode != ModeNetworked {
			return fmt.Errorf("stage %q: unknown mode %q", st.Name, st.Mode)
		}
		if st.Port < 0 || st.Port > 65535 {
			return fmt.Errorf("stage %q: port %d out of range", st.Name, st.Port)
		}
		if st.Port != 0 {
			if prev, taken := ports[st.Port]; taken {
				return fmt.Errorf("stage %q: port %d already assigned to %q", st.Name, st.Port, prev)
			}
			ports[st.Port] = st.Name
		}
		if st.Target != "" {
			if st.Mode == ModeLocal {
				return fmt.Errorf("stage %q: target requires networked mode", st.Name)
			}
			if st.Port != 0 {
				return fmt.Errorf("stage %q: target and port are mutually exclusive", st.Name)
			}
		}
		if st.TimeoutMS < 0 {
			return fmt.Errorf("stage %q: timeout_ms must be >= 0", st.Name)
		}
	}
	return nil
}
