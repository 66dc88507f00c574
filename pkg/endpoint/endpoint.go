// pkg/endpoint/endpoint.go
package endpoint

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/descriptor"
	"github.com/apifunc/go-apifunc/pkg/protogen"
)

// Mode selects how Invoke reaches the wrapped function. Local calls it
// directly in-process; Networked round-trips through the generated contract
// over the endpoint's own gRPC listener. The two are never conflated.
type Mode string

const (
	ModeLocal     Mode = "local"
	ModeNetworked Mode = "networked"
)

// DefaultMaxWorkers bounds concurrent in-flight requests per endpoint.
const DefaultMaxWorkers = 10

// stopWait bounds how long Stop waits for the serve loop to exit.
const stopWait = 2 * time.Second

// Options tune one endpoint at construction time.
type Options struct {
	Port       int  // 0 = OS-assigned via a bind-to-zero probe
	Mode       Mode // default ModeNetworked
	MaxWorkers int  // default DefaultMaxWorkers
	EagerStart bool // default false: construction does not listen
}

// Endpoint owns one function, one compiled contract binding and one network
// listener. At most one listener per Endpoint instance at a time.
type Endpoint struct {
	desc     *descriptor.Descriptor
	binding  *protogen.Binding
	mode     Mode
	maxWorks int
	port     int
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	lis     net.Listener
	srv     *grpc.Server
	done    chan struct{}
	conn    *grpc.ClientConn
}

// New wires a described function to its compiled binding and reserves a
// port. Explicit ports are taken as-is (1-65535); port 0 asks the OS for an
// ephemeral one. The listener is not started unless opts.EagerStart is set.
func New(d *descriptor.Descriptor, b *protogen.Binding, opts Options, log *zap.Logger) (*Endpoint, error) {
	if d == nil || b == nil {
		return nil, fmt.Errorf("endpoint: descriptor and binding required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("endpoint %q: port %d out of range", d.Name, opts.Port)
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeNetworked
	}
	if mode != ModeLocal && mode != ModeNetworked {
		return nil, fmt.Errorf("endpoint %q: unknown mode %q", d.Name, mode)
	}
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}

	port := opts.Port
	if port == 0 {
		p, err := probePort()
		if err != nil {
			return nil, &BindError{Port: 0, Err: err}
		}
		port = p
	}

	e := &Endpoint{
		desc:     d,
		binding:  b,
		mode:     mode,
		maxWorks: workers,
		port:     port,
		log:      log.With(zap.String("func", d.Name), zap.Int("port", port)),
	}
	if opts.EagerStart {
		if err := e.Start(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// probePort binds :0 and reads back the OS-assigned ephemeral port.
func probePort() (int, error) {
	l, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func (e *Endpoint) Name() string   { return e.desc.Name }
func (e *Endpoint) Port() int      { return e.port }
func (e *Endpoint) Mode() Mode     { return e.mode }
func (e *Endpoint) Target() string { return fmt.Sprintf("127.0.0.1:%d", e.port) }

// Descriptor exposes the registration-time function descriptor.
func (e *Endpoint) Descriptor() *descriptor.Descriptor { return e.desc }

// Binding exposes the compiled contract artifacts.
func (e *Endpoint) Binding() *protogen.Binding { return e.binding }

func (e *Endpoint) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start binds the listener and begins serving the Execute operation on a
// bounded worker pool. Starting a running endpoint fails with
// AlreadyRunningError.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return &AlreadyRunningError{Func: e.desc.Name, Port: e.port}
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", e.port))
	if err != nil {
		return &BindError{Port: e.port, Err: err}
	}

	srv := grpc.NewServer(grpc.NumStreamWorkers(uint32(e.maxWorks)))
	srv.RegisterService(e.serviceDesc(), e)
	reflection.Register(srv)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(lis); err != nil {
			e.log.Error("endpoint serve exited", zap.Error(err))
		}
	}()

	e.lis = lis
	e.srv = srv
	e.done = done
	e.running = true
	e.log.Info("endpoint started", zap.String("service", string(e.binding.Service.FullName())))
	return nil
}

// Stop unbinds immediately without draining in-flight requests, then waits
// bounded for the serve loop to exit. Stopping a stopped endpoint is a no-op.
// A stopped endpoint is not reusable without a fresh Start.
func (e *Endpoint) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.srv.Stop()
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	select {
	case <-e.done:
	case <-time.After(stopWait):
		e.log.Warn("endpoint serve loop did not exit in time")
	}
	e.lis = nil
	e.srv = nil
	e.running = false
	e.log.Info("endpoint stopped")
	return nil
}

// Process implements pipeline.Stage over this endpoint.
func (e *Endpoint) Process(ctx context.Context, input any) (any, error) {
	return e.Invoke(ctx, input)
}

// clientConn lazily dials the endpoint's own listener for networked calls.
func (e *Endpoint) clientConn() (*grpc.ClientConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return e.conn, nil
	}
	conn, err := grpc.NewClient(e.Target(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	e.conn = conn
	return conn, nil
}

// serviceDesc builds the gRPC service descriptor for the generated contract.
// The handler is bound here, at registration time, so invocation never
// discovers stubs by name at runtime.
func (e *Endpoint) serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: string(e.binding.Service.FullName()),
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: contract.Method,
				Handler:    e.executeHandler,
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: e.binding.ContractPath,
	}
}
