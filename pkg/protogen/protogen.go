// pkg/protogen/protogen.go
package protogen

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/descriptor"
)

// DefaultProtoc is the external toolchain binary invoked for compilation.
const DefaultProtoc = "protoc"

// CompilationError carries the toolchain diagnostics when protoc exits
// non-zero. Not retried automatically.
type CompilationError struct {
	Func     string
	ExitCode int
	Output   string
	Err      error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile contract for %q: exit %d: %s", e.Func, e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *CompilationError) Unwrap() error { return e.Err }

// Binding is the compiled artifact set for one function, loaded back from
// the descriptor set protoc emits. Descriptors are registered here at
// compile time so invocation never scans for stubs by name.
type Binding struct {
	FuncName string
	Service  protoreflect.ServiceDescriptor
	Method   protoreflect.MethodDescriptor
	Request  protoreflect.MessageDescriptor
	Response protoreflect.MessageDescriptor

	ContractPath   string
	DescriptorPath string
}

// Compiler writes contract files and drives the external protoc toolchain.
type Compiler struct {
	ProtoDir     string
	GeneratedDir string
	IncludeDir   string // optional shared schema includes
	Protoc       string

	log *zap.Logger
}

func NewCompiler(protoDir, generatedDir string, log *zap.Logger) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{
		ProtoDir:     protoDir,
		GeneratedDir: generatedDir,
		Protoc:       DefaultProtoc,
		log:          log,
	}
}

// Compile writes contractText under ProtoDir, runs protoc into GeneratedDir
// and loads the resulting descriptor set into a Binding.
//
// Recompiling the same function name overwrites prior artifacts in place;
// callers must not assume isolation between repeated registrations.
func (c *Compiler) Compile(d *descriptor.Descriptor, contractText string) (*Binding, error) {
	for _, dir := range []string{c.ProtoDir, c.GeneratedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure %s: %w", dir, err)
		}
	}

	contractPath := filepath.Join(c.ProtoDir, contract.FileName(d.Name))
	if err := os.WriteFile(contractPath, []byte(contractText), 0o644); err != nil {
		return nil, fmt.Errorf("write contract %s: %w", contractPath, err)
	}
	c.log.Info("generated contract file", zap.String("path", contractPath))

	descPath := filepath.Join(c.GeneratedDir, d.Name+".pb")
	args := []string{
		"--proto_path=" + c.ProtoDir,
	}
	if c.IncludeDir != "" {
		args = append(args, "--proto_path="+c.IncludeDir)
	}
	args = append(args,
		"--descriptor_set_out="+descPath,
		"--include_imports",
		contractPath,
	)

	bin := c.Protoc
	if bin == "" {
		bin = DefaultProtoc
	}
	out, err := exec.Command(bin, args...).CombinedOutput()
	if err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return nil, &CompilationError{Func: d.Name, ExitCode: code, Output: string(out), Err: err}
	}
	c.log.Info("compiled contract", zap.String("func", d.Name), zap.String("descriptor", descPath))

	return loadBinding(d.Name, contractPath, descPath)
}

// loadBinding parses a serialized FileDescriptorSet and resolves the
// function's service, method and message descriptors.
func loadBinding(funcName, contractPath, descPath string) (*Binding, error) {
	raw, err := os.ReadFile(descPath)
	if err != nil {
		return nil, fmt.Errorf("read descriptor set %s: %w", descPath, err)
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse descriptor set %s: %w", descPath, err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("register descriptors for %q: %w", funcName, err)
	}

	svcName := protoreflect.FullName(contract.Package + "." + contract.ServiceName(funcName))
	dd, err := files.FindDescriptorByName(svcName)
	if err != nil {
		return nil, fmt.Errorf("service %s not found in %s: %w", svcName, descPath, err)
	}
	svc, ok := dd.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a service descriptor", svcName)
	}
	m := svc.Methods().ByName(protoreflect.Name(contract.Method))
	if m == nil {
		return nil, fmt.Errorf("service %s has no %s method", svcName, contract.Method)
	}

	return &Binding{
		FuncName:       funcName,
		Service:        svc,
		Method:         m,
		Request:        m.Input(),
		Response:       m.Output(),
		ContractPath:   contractPath,
		DescriptorPath: descPath,
	}, nil
}
