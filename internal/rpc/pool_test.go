package rpc_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autotune/internal/rpc"
)

// TestHelperProcess stands in for the tracker and server binaries. With
// --port it listens until killed; otherwise it sleeps, or exits at once
// when AUTOTUNE_RPC_HELPER_EXIT is set.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("AUTOTUNE_RPC_HELPER") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if os.Getenv("AUTOTUNE_RPC_HELPER_EXIT") != "" {
		os.Exit(0)
	}
	fmt.Println(strings.Join(args, " "))
	var host, port string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--host":
			host = args[i+1]
		case "--port":
			port = args[i+1]
		}
	}
	if port == "" {
		time.Sleep(time.Hour)
		os.Exit(0)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			os.Exit(0)
		}
		conn.Close()
	}
}

func helperCommand() []string {
	return []string{os.Args[0], "-test.run=TestHelperProcess", "--"}
}

func freeRange(t *testing.T) (int, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port, port + 10
}

func dialable(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func TestFindFreePort(t *testing.T) {
	start, end := freeRange(t)
	port, err := rpc.FindFreePort("127.0.0.1", start, end)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, start)
	assert.LessOrEqual(t, port, end)
}

func TestFindFreePortExhausted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	_, err = rpc.FindFreePort("127.0.0.1", port, port)
	assert.Error(t, err)
}

func TestEndpointTracker(t *testing.T) {
	ep := rpc.Endpoint{Host: "127.0.0.1", PortStart: 9000, PortEnd: 9001, Key: "k"}
	assert.Equal(t, "127.0.0.1:9000", ep.Tracker())
}

func TestPoolLifecycle(t *testing.T) {
	t.Setenv("AUTOTUNE_RPC_HELPER", "1")
	start, end := freeRange(t)
	logDir := t.TempDir()
	envFile := filepath.Join(t.TempDir(), "rpc.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TVM_NUM_THREADS=1\n"), 0o644))

	pool := rpc.NewPool(rpc.StartOpts{
		Host:           "127.0.0.1",
		Port:           start,
		PortEnd:        end,
		Key:            "sim",
		TrackerCommand: helperCommand(),
		ServerCommand:  helperCommand(),
		Servers:        2,
		EnvFile:        envFile,
		LogDir:         logDir,
		ReadyTimeout:   10 * time.Second,
	})

	ep, err := pool.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sim", ep.Key)
	assert.GreaterOrEqual(t, ep.PortStart, start)
	assert.Equal(t, end, ep.PortEnd, "endpoint keeps the configured range end")
	assert.True(t, dialable(ep.Host, ep.PortStart))

	got, ok := pool.Endpoint()
	assert.True(t, ok)
	assert.Equal(t, ep, got)

	_, err = pool.Start(context.Background())
	assert.ErrorIs(t, err, rpc.ErrAlreadyStarted)

	assert.FileExists(t, filepath.Join(logDir, "rpc-tracker.log"))
	assert.FileExists(t, filepath.Join(logDir, "rpc-server-1.log"))

	require.NoError(t, pool.Stop())
	trackerLog, err := os.ReadFile(filepath.Join(logDir, "rpc-tracker.log"))
	require.NoError(t, err)
	assert.Contains(t, string(trackerLog), fmt.Sprintf("--port %d --port-end %d", ep.PortStart, end))
	assert.Eventually(t, func() bool { return !dialable(ep.Host, ep.PortStart) }, 5*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, pool.Stop(), rpc.ErrNotStarted)
}

func TestPoolCrashedServersAreTolerated(t *testing.T) {
	t.Setenv("AUTOTUNE_RPC_HELPER", "1")
	start, end := freeRange(t)
	pool := rpc.NewPool(rpc.StartOpts{
		Port:           start,
		PortEnd:        end,
		Key:            "sim",
		TrackerCommand: helperCommand(),
		ServerCommand:  []string{"false"},
		Servers:        3,
		ReadyTimeout:   10 * time.Second,
	})
	_, err := pool.Start(context.Background())
	require.NoError(t, err)
	assert.NoError(t, pool.Stop())
}

func TestPoolTrackerNeverReady(t *testing.T) {
	t.Setenv("AUTOTUNE_RPC_HELPER", "1")
	t.Setenv("AUTOTUNE_RPC_HELPER_EXIT", "1")
	start, end := freeRange(t)
	pool := rpc.NewPool(rpc.StartOpts{
		Port:           start,
		PortEnd:        end,
		Key:            "sim",
		TrackerCommand: helperCommand(),
		ServerCommand:  helperCommand(),
		ReadyTimeout:   500 * time.Millisecond,
	})
	_, err := pool.Start(context.Background())
	assert.Error(t, err)
	_, ok := pool.Endpoint()
	assert.False(t, ok)
	assert.ErrorIs(t, pool.Stop(), rpc.ErrNotStarted)
}

func TestStopWithoutStart(t *testing.T) {
	assert.ErrorIs(t, rpc.NewPool(rpc.StartOpts{}).Stop(), rpc.ErrNotStarted)
}
