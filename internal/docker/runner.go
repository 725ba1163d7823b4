package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

type RunOpts struct {
	Image   string
	Command []string
	Env     map[string]string
	// HostNetwork shares the host network namespace so the container can
	// reach a tracker bound to localhost.
	HostNetwork bool
	Labels      map[string]string
}

// Container is a started, detached container. Stop removes it.
type Container struct {
	ID  string
	cli *client.Client
}

// StartContainer creates and starts a long-running container.
func StartContainer(ctx context.Context, opts *RunOpts) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	envSlice := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	labels := map[string]string{"autotune": "true"}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	initTrue := true
	hostCfg := &container.HostConfig{Init: &initTrue}
	if opts.HostNetwork {
		hostCfg.NetworkMode = "host"
	} else {
		hostCfg.ExtraHosts = []string{"host.docker.internal:host-gateway"}
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  opts.Image,
			Cmd:    opts.Command,
			Env:    envSlice,
			Labels: labels,
		},
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	c := &Container{ID: createResp.ID, cli: cli}

	if _, err := cli.ContainerStart(ctx, c.ID, client.ContainerStartOptions{}); err != nil {
		c.Stop()
		return nil, fmt.Errorf("starting container: %w", err)
	}
	return c, nil
}

// Stop kills and removes the container. The last log lines are copied to
// stderr for debugging when the container had already exited.
func (c *Container) Stop() error {
	ctx := context.Background()
	defer c.cli.Close()

	logReader, _ := c.cli.ContainerLogs(ctx, c.ID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "50"})
	if logReader != nil {
		logData, _ := io.ReadAll(logReader)
		logReader.Close()
		if len(logData) > 0 {
			fmt.Fprintf(os.Stderr, "Container %.12s logs:\n%s\n", c.ID, string(logData))
		}
	}

	c.cli.ContainerKill(ctx, c.ID, client.ContainerKillOptions{Signal: "SIGKILL"})
	if _, err := c.cli.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("removing container %.12s: %w", c.ID, err)
	}
	return nil
}
