// pkg/endpoint/invoke.go
package endpoint

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/apifunc/go-apifunc/pkg/codec"
	"github.com/apifunc/go-apifunc/pkg/contract"
)

// preferredResponseFields are tried in order before falling back to the
// first populated field of a response message.
var preferredResponseFields = []string{"result", "content", "data"}

// Invoke runs the endpoint's function on input. Local mode calls the
// function directly (zero-copy); networked mode serializes through the
// generated contract and requires a running listener.
func (e *Endpoint) Invoke(ctx context.Context, input any) (any, error) {
	if err := e.validateInput(input); err != nil {
		return nil, err
	}

	if e.mode == ModeLocal {
		return e.desc.Call(input)
	}

	if !e.Running() {
		return nil, &RemoteInvocationError{
			Func:   e.desc.Name,
			Target: e.Target(),
			Err:    fmt.Errorf("endpoint not running"),
		}
	}

	req, err := e.buildRequest(input)
	if err != nil {
		return nil, err
	}
	conn, err := e.clientConn()
	if err != nil {
		return nil, &RemoteInvocationError{Func: e.desc.Name, Target: e.Target(), Err: err}
	}
	resp := dynamicpb.NewMessage(e.binding.Response)
	if err := conn.Invoke(ctx, contract.FullMethod(e.desc.Name), req, resp); err != nil {
		return nil, &RemoteInvocationError{Func: e.desc.Name, Target: e.Target(), Err: err}
	}
	return parseResponse(resp), nil
}

// validateInput enforces the accepted-type contract: structured mapping,
// string, or sequence. Byte sequences ride through only for stages that
// declare binary data on their boundary.
func (e *Endpoint) validateInput(input any) error {
	switch input.(type) {
	case nil:
		return &ValidationError{Func: e.desc.Name, Reason: "nil input"}
	case map[string]any, string:
		return nil
	case []byte:
		if e.acceptsBytes() {
			return nil
		}
		return &ValidationError{Func: e.desc.Name, Reason: "byte sequence input on a non-binary stage"}
	}
	k := reflect.TypeOf(input).Kind()
	if k == reflect.Slice || k == reflect.Array || k == reflect.Map {
		return nil
	}
	return &ValidationError{
		Func:   e.desc.Name,
		Reason: fmt.Sprintf("unsupported input type %T (want mapping, string or sequence)", input),
	}
}

// acceptsBytes reports whether the stage is marked for binary data: either
// it produces bytes itself or one of its declared parameters takes bytes.
func (e *Endpoint) acceptsBytes() bool {
	if e.desc.Binary {
		return true
	}
	for _, p := range e.desc.Params {
		if p.Type == reflect.TypeOf([]byte(nil)) {
			return true
		}
	}
	return false
}

// buildRequest marshals input into the generated request shape.
func (e *Endpoint) buildRequest(input any) (*dynamicpb.Message, error) {
	return marshalRequest(e.desc.Name, e.binding.Request, input)
}

// marshalRequest fills a dynamic request message. With one declared field
// the whole input rides in it; with several, a mapping input is destructured
// by field name.
func marshalRequest(funcName string, reqDesc protoreflect.MessageDescriptor, input any) (*dynamicpb.Message, error) {
	msg := dynamicpb.NewMessage(reqDesc)
	fields := reqDesc.Fields()

	if fields.Len() == 1 {
		s, err := codec.EncodeOpaque(input)
		if err != nil {
			return nil, &ValidationError{Func: funcName, Reason: err.Error()}
		}
		msg.Set(fields.Get(0), protoreflect.ValueOfString(s))
		return msg, nil
	}

	m, ok := input.(map[string]any)
	if !ok {
		return nil, &ValidationError{
			Func:   funcName,
			Reason: fmt.Sprintf("%d request fields need a mapping input, got %T", fields.Len(), input),
		}
	}
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		raw, ok := m[string(fd.Name())]
		if !ok {
			return nil, &ValidationError{Func: funcName, Reason: fmt.Sprintf("missing field %q", fd.Name())}
		}
		s, err := codec.EncodeOpaque(raw)
		if err != nil {
			return nil, &ValidationError{Func: funcName, Reason: err.Error()}
		}
		msg.Set(fd, protoreflect.ValueOfString(s))
	}
	return msg, nil
}

// executeHandler is the server side of the Execute operation: decode the
// dynamic request, dispatch to the function, marshal the result.
func (e *Endpoint) executeHandler(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := dynamicpb.NewMessage(e.binding.Request)
	if err := dec(req); err != nil {
		return nil, err
	}

	out, err := e.desc.Call(requestInput(req))
	if err != nil {
		return nil, err
	}

	resp := dynamicpb.NewMessage(e.binding.Response)
	rf := e.binding.Response.Fields().ByName("result")
	if rf == nil {
		rf = e.binding.Response.Fields().Get(0)
	}
	if rf.Kind() == protoreflect.BytesKind {
		b, ok := out.([]byte)
		if !ok {
			return nil, fmt.Errorf("%s: binary stage returned %T", e.desc.Name, out)
		}
		resp.Set(rf, protoreflect.ValueOfBytes(b))
		return resp, nil
	}
	s, err := codec.EncodeOpaque(out)
	if err != nil {
		return nil, err
	}
	resp.Set(rf, protoreflect.ValueOfString(s))
	return resp, nil
}

// requestInput lowers a decoded request message back into the dispatchable
// input shape: one field passes its value through, several rebuild the
// mapping the client destructured.
func requestInput(req *dynamicpb.Message) any {
	fields := req.Descriptor().Fields()
	if fields.Len() == 1 {
		return codec.DecodeOpaque(req.Get(fields.Get(0)).String())
	}
	m := make(map[string]any, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		m[string(fd.Name())] = codec.DecodeOpaque(req.Get(fd).String())
	}
	return m
}

// parseResponse lifts the stage output out of a response message, preferring
// conventional field names over positional fallback.
func parseResponse(resp *dynamicpb.Message) any {
	fields := resp.Descriptor().Fields()
	var fd protoreflect.FieldDescriptor
	for _, name := range preferredResponseFields {
		if f := fields.ByName(protoreflect.Name(name)); f != nil {
			fd = f
			break
		}
	}
	if fd == nil && fields.Len() > 0 {
		fd = fields.Get(0)
	}
	if fd == nil {
		return nil
	}
	if fd.Kind() == protoreflect.BytesKind {
		return resp.Get(fd).Bytes()
	}
	return codec.DecodeOpaque(resp.Get(fd).String())
}
