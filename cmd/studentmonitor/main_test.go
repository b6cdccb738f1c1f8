package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingConfigFile(t *testing.T) {
	t.Setenv("STUDENTMONITOR_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	err := run(context.Background())
	assert.Error(t, err)
}

func TestRun_InvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  capacity: 10\n  snapshot_size: 20\n"), 0o600))
	t.Setenv("STUDENTMONITOR_CONFIG_FILE", path)

	assert.Error(t, run(context.Background()))
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	t.Setenv("STUDENTMONITOR_CONFIG_FILE", "")
	t.Setenv("STUDENTMONITOR_HTTP_HOST", "127.0.0.1")
	t.Setenv("STUDENTMONITOR_HTTP_PORT", strconv.Itoa(port))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	assert.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
