package main

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeClosedPort(t *testing.T) {
	// Reserve a port, then close it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	svcs, ok := probe(context.Background(), "127.0.0.1", port)
	require.False(t, ok)
	require.Empty(t, svcs)
}

func TestProbeNonGRPCListener(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	port := l.Addr().(*net.TCPAddr).Port
	_, ok := probe(context.Background(), "127.0.0.1", port)
	require.False(t, ok, "a plain TCP listener is not a gRPC service")
}
