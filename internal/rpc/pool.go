// Package rpc manages the RPC tracker and device servers the tuning tool
// uses to measure candidates on a device or simulator.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalnine/autotune/internal/docker"
	"github.com/signalnine/autotune/internal/logging"
)

var (
	ErrAlreadyStarted = errors.New("rpc pool already started")
	ErrNotStarted     = errors.New("rpc pool not started")
)

// Endpoint is where workers reach the tracker.
type Endpoint struct {
	Host      string
	PortStart int
	PortEnd   int
	Key       string
}

func (e Endpoint) Tracker() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.PortStart))
}

type StartOpts struct {
	Host           string
	Port           int
	PortEnd        int
	Key            string
	TrackerCommand []string
	ServerCommand  []string
	Servers        int
	// DockerImage, if set, runs the servers as containers of this image.
	DockerImage  string
	EnvFile      string
	LogDir       string
	ReadyTimeout time.Duration
}

type stopper interface {
	Stop() error
}

// Pool owns one tracker and a fixed number of servers. Servers that crash
// are not restarted.
type Pool struct {
	opts StartOpts

	mu       sync.Mutex
	started  bool
	tracker  stopper
	servers  []stopper
	endpoint Endpoint
}

func NewPool(opts StartOpts) *Pool {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.PortEnd < opts.Port {
		opts.PortEnd = opts.Port
	}
	if opts.Servers < 1 {
		opts.Servers = 1
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	return &Pool{opts: opts}
}

// FindFreePort returns the first port in [start, end] that host can bind.
func FindFreePort(host string, start, end int) (int, error) {
	for port := start; port <= end; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %s:%d..%d", host, start, end)
}

// Start launches the tracker, waits until it accepts connections, then
// launches the servers. On failure everything already launched is stopped.
func (p *Pool) Start(ctx context.Context) (Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return Endpoint{}, ErrAlreadyStarted
	}
	logger := logging.Get("rpc")

	env, err := p.env()
	if err != nil {
		return Endpoint{}, err
	}
	if p.opts.LogDir != "" {
		if err := os.MkdirAll(p.opts.LogDir, 0o755); err != nil {
			return Endpoint{}, fmt.Errorf("creating rpc log dir: %w", err)
		}
	}

	port, err := FindFreePort(p.opts.Host, p.opts.Port, p.opts.PortEnd)
	if err != nil {
		return Endpoint{}, err
	}
	// The tracker binds the first free port; the rest of the configured range
	// stays available to it and the servers.
	ep := Endpoint{Host: p.opts.Host, PortStart: port, PortEnd: p.opts.PortEnd, Key: p.opts.Key}

	trackerArgv := append(append([]string{}, p.opts.TrackerCommand...),
		"--host", ep.Host, "--port", strconv.Itoa(ep.PortStart), "--port-end", strconv.Itoa(ep.PortEnd))
	tracker, err := startProcess(ctx, trackerArgv, env, p.logPath("tracker"))
	if err != nil {
		return Endpoint{}, fmt.Errorf("starting rpc tracker: %w", err)
	}
	if err := waitForPort(ep.Host, ep.PortStart, p.opts.ReadyTimeout); err != nil {
		tracker.Stop()
		return Endpoint{}, fmt.Errorf("rpc tracker did not start: %w", err)
	}
	logger.Info("tracker started", "addr", ep.Tracker())

	serverArgv := append(append([]string{}, p.opts.ServerCommand...), "--tracker", ep.Tracker(), "--key", ep.Key)
	var servers []stopper
	for i := 0; i < p.opts.Servers; i++ {
		s, err := p.startServer(ctx, i, serverArgv, env)
		if err != nil {
			for _, s := range servers {
				s.Stop()
			}
			tracker.Stop()
			return Endpoint{}, fmt.Errorf("starting rpc server %d: %w", i, err)
		}
		servers = append(servers, s)
	}
	logger.Info("servers started", "count", len(servers), "key", ep.Key)

	p.tracker = tracker
	p.servers = servers
	p.endpoint = ep
	p.started = true
	return ep, nil
}

// Stop terminates the servers and the tracker. It returns the first error
// encountered but always attempts every process.
func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	var first error
	for _, s := range p.servers {
		if err := s.Stop(); err != nil && first == nil {
			first = err
		}
	}
	if err := p.tracker.Stop(); err != nil && first == nil {
		first = err
	}
	p.servers = nil
	p.tracker = nil
	p.started = false
	logging.Get("rpc").Info("rpc pool stopped")
	return first
}

// Endpoint returns the running endpoint, if any.
func (p *Pool) Endpoint() (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoint, p.started
}

func (p *Pool) startServer(ctx context.Context, i int, argv []string, env map[string]string) (stopper, error) {
	if p.opts.DockerImage != "" {
		return docker.StartContainer(ctx, &docker.RunOpts{
			Image:       p.opts.DockerImage,
			Command:     argv,
			Env:         env,
			HostNetwork: true,
			Labels:      map[string]string{"autotune.role": "rpc-server"},
		})
	}
	return startProcess(ctx, argv, env, p.logPath(fmt.Sprintf("server-%d", i)))
}

func (p *Pool) env() (map[string]string, error) {
	if p.opts.EnvFile == "" {
		return nil, nil
	}
	env, err := godotenv.Read(p.opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("reading rpc env file: %w", err)
	}
	return env, nil
}

func (p *Pool) logPath(name string) string {
	if p.opts.LogDir == "" {
		return ""
	}
	return filepath.Join(p.opts.LogDir, "rpc-"+name+".log")
}

type process struct {
	cmd     *exec.Cmd
	logFile *os.File
}

func startProcess(ctx context.Context, argv []string, env map[string]string, logPath string) (*process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var logFile *os.File
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return nil, fmt.Errorf("creating log file: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	return &process{cmd: cmd, logFile: logFile}, nil
}

func (p *process) Stop() error {
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
	if p.logFile != nil {
		p.logFile.Close()
	}
	return nil
}

func waitForPort(host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("%s not ready after %s", addr, timeout)
}
