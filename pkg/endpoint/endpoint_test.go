package endpoint

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/descriptor"
	"github.com/apifunc/go-apifunc/pkg/protogen"
)

// testBinding assembles contract descriptors in-process so these tests do
// not shell out to protoc.
func testBinding(t *testing.T, d *descriptor.Descriptor) *protogen.Binding {
	t.Helper()

	req := &descriptorpb.DescriptorProto{Name: proto.String(contract.RequestName(d.Name))}
	for i, p := range d.Params {
		req.Field = append(req.Field, &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(p.Name),
			Number: proto.Int32(int32(i + 1)),
			Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		})
	}
	resultType := descriptorpb.FieldDescriptorProto_TYPE_STRING
	if d.Binary {
		resultType = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	}
	resp := &descriptorpb.DescriptorProto{
		Name: proto.String(contract.ResponseName(d.Name)),
		Field: []*descriptorpb.FieldDescriptorProto{{
			Name:   proto.String("result"),
			Number: proto.Int32(1),
			Type:   resultType.Enum(),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}},
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:        proto.String(contract.FileName(d.Name)),
		Package:     proto.String(contract.Package),
		Syntax:      proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{req, resp},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String(contract.ServiceName(d.Name)),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String(contract.Method),
				InputType:  proto.String("." + contract.Package + "." + contract.RequestName(d.Name)),
				OutputType: proto.String("." + contract.Package + "." + contract.ResponseName(d.Name)),
			}},
		}},
	}

	fd, err := protodesc.NewFile(fdp, nil)
	require.NoError(t, err)
	svc := fd.Services().Get(0)
	m := svc.Methods().ByName(protoreflect.Name(contract.Method))
	require.NotNil(t, m)

	return &protogen.Binding{
		FuncName: d.Name,
		Service:  svc,
		Method:   m,
		Request:  m.Input(),
		Response: m.Output(),
	}
}

func newTestEndpoint(t *testing.T, name string, fn any, opts Options, params ...string) *Endpoint {
	t.Helper()
	d, err := descriptor.Describe(name, fn, params...)
	require.NoError(t, err)
	e, err := New(d, testBinding(t, d), opts, nil)
	require.NoError(t, err)
	return e
}

func TestNewValidation(t *testing.T) {
	d, err := descriptor.Describe("upper", strings.ToUpper, "text")
	require.NoError(t, err)
	b := testBinding(t, d)

	_, err = New(nil, b, Options{}, nil)
	require.Error(t, err)

	_, err = New(d, b, Options{Port: 70000}, nil)
	require.ErrorContains(t, err, "out of range")

	_, err = New(d, b, Options{Mode: "broadcast"}, nil)
	require.ErrorContains(t, err, "unknown mode")
}

func TestNewAssignsEphemeralPort(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{}, "text")
	require.NotZero(t, e.Port())
	require.Equal(t, ModeNetworked, e.Mode())
	require.False(t, e.Running())
}

func TestLocalInvokeBypassesNetwork(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{Mode: ModeLocal}, "text")

	out, err := e.Invoke(context.Background(), "test")
	require.NoError(t, err)
	require.Equal(t, "TEST", out)
	require.False(t, e.Running(), "local invocation must not start a listener")
}

func TestNetworkedInvokeRequiresRunning(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{}, "text")

	_, err := e.Invoke(context.Background(), "test")
	var re *RemoteInvocationError
	require.ErrorAs(t, err, &re)
	require.Equal(t, "upper", re.Func)
}

func TestValidateInput(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{Mode: ModeLocal}, "text")

	_, err := e.Invoke(context.Background(), nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = e.Invoke(context.Background(), 42)
	require.ErrorAs(t, err, &ve)

	_, err = e.Invoke(context.Background(), []byte("raw"))
	require.ErrorAs(t, err, &ve, "byte input on a non-binary stage")

	bin := newTestEndpoint(t, "wrap", func(b []byte) []byte { return b }, Options{Mode: ModeLocal}, "blob")
	out, err := bin.Invoke(context.Background(), []byte("raw"))
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), out)
}

func TestStartStopLifecycle(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{}, "text")

	require.NoError(t, e.Start())
	require.True(t, e.Running())

	err := e.Start()
	var are *AlreadyRunningError
	require.ErrorAs(t, err, &are)
	require.Equal(t, e.Port(), are.Port)

	require.NoError(t, e.Stop())
	require.False(t, e.Running())
	require.NoError(t, e.Stop(), "stopping a stopped endpoint is a no-op")
}

func TestNetworkedRoundTrip(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{}, "text")
	require.NoError(t, e.Start())
	defer e.Stop()

	out, err := e.Invoke(context.Background(), "test")
	require.NoError(t, err)
	require.Equal(t, "TEST", out)
}

func TestNetworkedRoundTripStructured(t *testing.T) {
	join := func(a, b string) string { return a + "-" + b }
	e := newTestEndpoint(t, "join", join, Options{}, "left", "right")
	require.NoError(t, e.Start())
	defer e.Stop()

	out, err := e.Invoke(context.Background(), map[string]any{"left": "x", "right": "y"})
	require.NoError(t, err)
	require.Equal(t, "x-y", out)
}

func TestNetworkedRoundTripBinary(t *testing.T) {
	e := newTestEndpoint(t, "html_to_pdf", func(s string) []byte {
		return append([]byte("%PDF "), s...)
	}, Options{}, "html_content")
	require.NoError(t, e.Start())
	defer e.Stop()

	out, err := e.Invoke(context.Background(), "<html/>")
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF <html/>"), out)
}

func TestRemoteClientRoundTrip(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{}, "text")
	require.NoError(t, e.Start())
	defer e.Stop()

	rc := NewRemoteClient("upper", e.Target(), e.Binding())
	defer rc.Close()

	out, err := rc.Process(context.Background(), "remote")
	require.NoError(t, err)
	require.Equal(t, "REMOTE", out)

	require.NoError(t, rc.Stop())
	require.NoError(t, rc.Close(), "closing a closed client is a no-op")
}

func TestRemoteClientConnectionRefused(t *testing.T) {
	e := newTestEndpoint(t, "upper", strings.ToUpper, Options{}, "text")

	rc := NewRemoteClient("upper", "127.0.0.1:1", e.Binding())
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := rc.Process(ctx, "x")
	var re *RemoteInvocationError
	require.ErrorAs(t, err, &re)
	require.Equal(t, "127.0.0.1:1", re.Target)
}

func TestNetworkedJSONResultDecodes(t *testing.T) {
	e := newTestEndpoint(t, "wrapmap", func(s string) map[string]any {
		return map[string]any{"value": s}
	}, Options{}, "text")
	require.NoError(t, e.Start())
	defer e.Stop()

	out, err := e.Invoke(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"value": "x"}, out)
}
