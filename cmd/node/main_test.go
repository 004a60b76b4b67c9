package main

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marben/distfrac/protocol"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"help", []string{"--help"}, false},
		{"unknown flag", []string{"-x"}, true},
		{"host without value", []string{"-h"}, true},
		{"bad port", []string{"-p", "70000"}, true},
		{"zero threads", []string{"-t", "0"}, true},
		{"zero bunch", []string{"-b", "0"}, true},
		{"stray argument", []string{"extra"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stderr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Contains(t, stderr.String(), "Usage: node")
		})
	}
}

func TestRun_BindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	var stderr bytes.Buffer
	err = run(context.Background(), []string{"-h", "127.0.0.1", "-p", strconv.Itoa(port)}, &stderr)
	require.ErrorContains(t, err, "net.Listen")
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var stderr bytes.Buffer
	go func() {
		done <- run(ctx, []string{"-h", "127.0.0.1", "-p", strconv.Itoa(port), "-t", "3", "-b", "5", "-log-level", "error"}, &stderr)
	}()

	var c *protocol.Client
	require.Eventually(t, func() bool {
		var err error
		c, err = protocol.Dial(context.Background(), addr)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cpus, err := c.QueryCPUs()
	require.NoError(t, err)
	require.Equal(t, 3, cpus)
	bunch, err := c.QueryBunch()
	require.NoError(t, err)
	require.Equal(t, 5, bunch)
	require.NoError(t, c.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
}
