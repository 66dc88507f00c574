// pkg/endpoint/remote.go
package endpoint

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/protogen"
)

// RemoteClient is the client-only stage handle: it invokes a stage service
// that some other process (or another Endpoint) is listening for. It owns a
// lazily dialed connection but never the peer's listener lifecycle.
type RemoteClient struct {
	funcName string
	target   string
	binding  *protogen.Binding

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewRemoteClient builds a stage handle from a compiled binding and a
// host:port target. The transport is insecure by contract: localhost or
// trusted-network deployment only.
func NewRemoteClient(funcName, target string, b *protogen.Binding) *RemoteClient {
	return &RemoteClient{funcName: funcName, target: target, binding: b}
}

func (c *RemoteClient) Name() string   { return c.funcName }
func (c *RemoteClient) Target() string { return c.target }

// Process implements pipeline.Stage with one synchronous request/response
// round trip per invocation.
func (c *RemoteClient) Process(ctx context.Context, input any) (any, error) {
	req, err := marshalRequest(c.funcName, c.binding.Request, input)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.conn == nil {
		conn, err := grpc.NewClient(c.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			c.mu.Unlock()
			return nil, &RemoteInvocationError{Func: c.funcName, Target: c.target, Err: err}
		}
		c.conn = conn
	}
	conn := c.conn
	c.mu.Unlock()

	resp := dynamicpb.NewMessage(c.binding.Response)
	if err := conn.Invoke(ctx, contract.FullMethod(c.funcName), req, resp); err != nil {
		return nil, &RemoteInvocationError{Func: c.funcName, Target: c.target, Err: err}
	}
	return parseResponse(resp), nil
}

// Start is a no-op; the connection is dialed lazily on first use.
func (c *RemoteClient) Start() error { return nil }

// Stop closes the lazily dialed connection.
func (c *RemoteClient) Stop() error { return c.Close() }

// Close releases the client connection. Safe to call repeatedly.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
