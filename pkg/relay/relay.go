// pkg/relay/relay.go
package relay

// Publish-only relay client implemented with Electrician builder
// primitives. Final pipeline outputs can be forwarded downstream without
// the orchestrator knowing anything about the wire.

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/joeydtaylor/electrician/pkg/builder"
)

// Message is the byte-level publish envelope.
type Message struct {
	Topic   string
	Body    []byte
	Headers map[string]string
}

// Client is the minimal interface the gateway needs.
type Client interface {
	Publish(ctx context.Context, m Message) error
}

type builderClient struct {
	submit func(context.Context, []byte) error // captures wire.Submit
}

// NewForwardRelayFromEnv returns a publish-capable Client powered by
// Electrician's ForwardRelay[[]byte]. It expects:
//
//	APIFUNC_RELAY_TARGET        = "host:port[,host2:port2]"   (required)
//
// Optional features (all off by default):
//
//	APIFUNC_RELAY_TLS_ENABLE    = "true" | "false"
//	APIFUNC_RELAY_TLS_CRT       = path (default: keys/tls/client.crt)
//	APIFUNC_RELAY_TLS_KEY       = path (default: keys/tls/client.key)
//	APIFUNC_RELAY_TLS_CA        = path (default: keys/tls/ca.crt)
//
//	APIFUNC_RELAY_COMPRESS      = "snappy" | ""
//	APIFUNC_RELAY_ENCRYPT       = "aesgcm" | ""
//	APIFUNC_RELAY_AES256_KEY_HEX = 64 hex chars (32 bytes)
//
//	APIFUNC_RELAY_STATIC_HEADERS = "k=v,k2=v2"
//
// If APIFUNC_RELAY_TARGET is absent it returns (nil, nil): forwarding off.
func NewForwardRelayFromEnv() (Client, error) {
	raw := strings.TrimSpace(os.Getenv("APIFUNC_RELAY_TARGET"))
	if raw == "" {
		return nil, nil
	}
	targets := strings.Split(raw, ",")

	useTLS := strings.EqualFold(os.Getenv("APIFUNC_RELAY_TLS_ENABLE"), "true")
	tlsCrt := envOr("APIFUNC_RELAY_TLS_CRT", "keys/tls/client.crt")
	tlsKey := envOr("APIFUNC_RELAY_TLS_KEY", "keys/tls/client.key")
	tlsCA := envOr("APIFUNC_RELAY_TLS_CA", "keys/tls/ca.crt")

	useSnappy := strings.EqualFold(os.Getenv("APIFUNC_RELAY_COMPRESS"), "snappy")
	useAESGCM := strings.EqualFold(os.Getenv("APIFUNC_RELAY_ENCRYPT"), "aesgcm")
	var aesKey string
	if useAESGCM {
		k := strings.TrimSpace(os.Getenv("APIFUNC_RELAY_AES256_KEY_HEX"))
		rawKey, err := hex.DecodeString(k)
		if err != nil || len(rawKey) != 32 {
			return nil, fmt.Errorf("APIFUNC_RELAY_AES256_KEY_HEX must be 64 hex chars (32 bytes): %w", err)
		}
		aesKey = string(rawKey)
	}

	staticHeaders := parseKV(os.Getenv("APIFUNC_RELAY_STATIC_HEADERS"))

	logger := builder.NewLogger(builder.LoggerWithDevelopment(true))

	// Build internals (not stored on the struct; captured by closures).
	ctx := context.Background()
	wire := builder.NewWire[[]byte](ctx, builder.WireWithLogger[[]byte](logger))

	perf := builder.NewPerformanceOptions(useSnappy, builder.COMPRESS_SNAPPY)
	sec := builder.NewSecurityOptions(useAESGCM, builder.ENCRYPTION_AES_GCM)
	tlsCfg := builder.NewTlsClientConfig(
		useTLS,
		tlsCrt, tlsKey, tlsCA,
		tls.VersionTLS13, tls.VersionTLS13,
	)

	fr := builder.NewForwardRelay[[]byte](
		ctx,
		builder.ForwardRelayWithLogger[[]byte](logger),
		builder.ForwardRelayWithTarget[[]byte](targets...),
		builder.ForwardRelayWithPerformanceOptions[[]byte](perf),
		builder.ForwardRelayWithSecurityOptions[[]byte](sec, aesKey),
		builder.ForwardRelayWithTLSConfig[[]byte](tlsCfg),
		builder.ForwardRelayWithStaticHeaders[[]byte](staticHeaders),
		builder.ForwardRelayWithInput(wire),
	)

	if err := wire.Start(ctx); err != nil {
		return nil, fmt.Errorf("relay wire start: %w", err)
	}
	if err := fr.Start(ctx); err != nil {
		return nil, fmt.Errorf("relay start: %w", err)
	}
	return &builderClient{
		submit: func(ctx context.Context, b []byte) error { return wire.Submit(ctx, b) },
	}, nil
}

// Publish sends bytes into the relay. Topic/headers ride the relay path.
func (c *builderClient) Publish(ctx context.Context, m Message) error {
	if m.Topic == "" {
		return fmt.Errorf("relay: missing topic")
	}
	return c.submit(ctx, m.Body)
}

// --- small helpers ---

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseKV(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		p := strings.SplitN(kv, "=", 2)
		if len(p) == 2 {
			out[strings.TrimSpace(p[0])] = strings.TrimSpace(p[1])
		}
	}
	return out
}
