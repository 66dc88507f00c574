package protogen_test

import (
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/descriptor"
	"github.com/apifunc/go-apifunc/pkg/protogen"
)

func requireProtoc(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("protoc"); err != nil {
		t.Skip("protoc not installed")
	}
}

func upperDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Describe("upper", strings.ToUpper, "text")
	require.NoError(t, err)
	return d
}

func TestCompileLoadsBinding(t *testing.T) {
	requireProtoc(t)
	dir := t.TempDir()
	c := protogen.NewCompiler(filepath.Join(dir, "proto"), filepath.Join(dir, "generated"), nil)

	d := upperDescriptor(t)
	b, err := c.Compile(d, contract.Generate(d))
	require.NoError(t, err)

	require.Equal(t, "upper", b.FuncName)
	require.Equal(t, "apifunc.UpperService", string(b.Service.FullName()))
	require.Equal(t, "Execute", string(b.Method.Name()))
	require.Equal(t, 1, b.Request.Fields().Len())
	require.Equal(t, "text", string(b.Request.Fields().Get(0).Name()))
	require.FileExists(t, b.ContractPath)
	require.FileExists(t, b.DescriptorPath)
}

func TestCompileReportsToolchainDiagnostics(t *testing.T) {
	requireProtoc(t)
	dir := t.TempDir()
	c := protogen.NewCompiler(filepath.Join(dir, "proto"), filepath.Join(dir, "generated"), nil)

	d := upperDescriptor(t)
	_, err := c.Compile(d, "syntax = \"proto3\"\nthis is not proto")

	var ce *protogen.CompilationError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "upper", ce.Func)
	require.NotEqual(t, 0, ce.ExitCode)
	require.NotEmpty(t, ce.Output)
}

func TestCompileMissingToolchain(t *testing.T) {
	dir := t.TempDir()
	c := protogen.NewCompiler(filepath.Join(dir, "proto"), filepath.Join(dir, "generated"), nil)
	c.Protoc = filepath.Join(dir, "no-such-protoc")

	d := upperDescriptor(t)
	_, err := c.Compile(d, contract.Generate(d))

	var ce *protogen.CompilationError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, -1, ce.ExitCode)
}
