// pkg/registry/registry.go
package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/descriptor"
	"github.com/apifunc/go-apifunc/pkg/endpoint"
	"github.com/apifunc/go-apifunc/pkg/protogen"
)

// UnknownFunctionError reports a stage name that no supplied function
// implements.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("no function registered for stage %q", e.Name)
}

// Registration binds one function name to everything produced at
// registration time: descriptor, contract text, compiled binding and the
// service endpoint. No runtime name-pattern discovery happens after this.
type Registration struct {
	Descriptor   *descriptor.Descriptor
	ContractText string
	Binding      *protogen.Binding
	Endpoint     *endpoint.Endpoint
}

// Registry owns the function -> Registration map for one framework
// instance. Explicit lifecycle: create, populate via Register, tear down
// via Close. Never a process-wide singleton.
type Registry struct {
	compiler   *protogen.Compiler
	maxWorkers int
	log        *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Registration
	order   []string
}

func New(compiler *protogen.Compiler, maxWorkers int, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if maxWorkers <= 0 {
		maxWorkers = endpoint.DefaultMaxWorkers
	}
	return &Registry{
		compiler:   compiler,
		maxWorkers: maxWorkers,
		log:        log,
		entries:    make(map[string]*Registration),
	}
}

// Register derives the function's descriptor, generates and compiles its
// contract, and wires a service endpoint around it.
//
// Registering a name twice overwrites the generated artifacts on disk and
// replaces the prior entry; the previous endpoint is stopped first. This is
// surfaced as a warning, not an error.
func (r *Registry) Register(name string, fn any, opts endpoint.Options, paramNames ...string) (*Registration, error) {
	d, err := descriptor.Describe(name, fn, paramNames...)
	if err != nil {
		return nil, err
	}

	text := contract.Generate(d)
	b, err := r.compiler.Compile(d, text)
	if err != nil {
		return nil, err
	}

	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = r.maxWorkers
	}
	ep, err := endpoint.New(d, b, opts, r.log)
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		Descriptor:   d,
		ContractText: text,
		Binding:      b,
		Endpoint:     ep,
	}

	r.mu.Lock()
	if prev, dup := r.entries[name]; dup {
		r.log.Warn("re-registration overwrites generated bindings",
			zap.String("func", name),
			zap.String("contract", b.ContractPath),
		)
		_ = prev.Endpoint.Stop()
	} else {
		r.order = append(r.order, name)
	}
	r.entries[name] = reg
	r.mu.Unlock()

	r.log.Info("registered function",
		zap.String("func", name),
		zap.String("service", contract.ServiceName(name)),
		zap.Int("port", ep.Port()),
		zap.String("mode", string(ep.Mode())),
	)
	return reg, nil
}

func (r *Registry) Get(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names lists registrations in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close stops every registered endpoint exactly once. The first error is
// reported after all endpoints have been told to stop.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for i := len(r.order) - 1; i >= 0; i-- {
		reg := r.entries[r.order[i]]
		if reg == nil {
			continue
		}
		if err := reg.Endpoint.Stop(); err != nil && first == nil {
			first = fmt.Errorf("stop endpoint %q: %w", r.order[i], err)
		}
	}
	return first
}
