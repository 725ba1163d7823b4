package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalnine/autotune/internal/config"
	"github.com/signalnine/autotune/internal/records"
	"github.com/signalnine/autotune/internal/report"
	"github.com/signalnine/autotune/internal/result"
	"github.com/signalnine/autotune/internal/rpc"
	"github.com/signalnine/autotune/internal/tasks"
	"github.com/signalnine/autotune/internal/tool"
	"github.com/signalnine/autotune/internal/tune"
)

var (
	flagWorkers int
	flagTrials  int
	flagAppend  bool
	flagModel   string
)

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Run a tuning session",
		Long: `Run a tuning session. With --workers 0 the tool tunes the whole search
space in one invocation; otherwise the space is split into tasks that are
tuned concurrently by that many workers.`,
		Args: cobra.NoArgs,
		RunE: runTune,
	}
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "override tune.num_workers")
	cmd.Flags().IntVar(&flagTrials, "trials", 0, "override tune.trials")
	cmd.Flags().BoolVar(&flagAppend, "append", false, "override tune.append")
	cmd.Flags().StringVar(&flagModel, "model", "", "override model")
	return cmd
}

func applyTuneOverrides(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Tune.NumWorkers = flagWorkers
	}
	if f.Changed("trials") {
		cfg.Tune.Trials = flagTrials
	}
	if f.Changed("append") {
		cfg.Tune.Append = flagAppend
	}
	if f.Changed("model") {
		cfg.Model = flagModel
	}
	return config.Validate(cfg)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyTuneOverrides(cmd, cfg); err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run directory: %s\n", runDir)

	engine, cleanup, err := newEngine(cfg, runDir)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := commandContext(cmd)
	defer stop()

	s, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	if err := result.WriteArtifacts(runDir, s); err != nil {
		return err
	}

	printSummary(out, s)
	fmt.Fprintln(out, "\n--- Results ---")
	return report.Render(result.FromSession(s), "table", out)
}

// newEngine wires the tool, picker, task cache and RPC pool described by
// cfg. cleanup releases the cache.
func newEngine(cfg *config.Config, runDir string) (*tune.Engine, func(), error) {
	command, err := tool.ParseCommand(cfg.Tool)
	if err != nil {
		return nil, nil, err
	}
	pickerCmd, err := tool.ParseCommand(cfg.Picker)
	if err != nil {
		return nil, nil, err
	}
	runner := &tool.Exec{}
	engine := &tune.Engine{
		Config:  cfg,
		Runner:  runner,
		Command: command,
		Picker:  &records.ToolPicker{Runner: runner, Command: pickerCmd},
		WorkDir: filepath.Join(runDir, "work"),
	}

	enum, cleanup, err := newEnumerator(cfg, runner, command)
	if err != nil {
		return nil, nil, err
	}
	engine.Enumerator = enum

	if cfg.RPC.Enabled {
		pool, err := newRPCPool(cfg, runDir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		engine.RPC = pool
	}
	return engine, cleanup, nil
}

func newEnumerator(cfg *config.Config, runner tool.Runner, command []string) (tasks.Enumerator, func(), error) {
	te := &tasks.ToolEnumerator{Runner: runner, Command: command, Args: tune.BaseArgs(cfg)}
	if !cfg.Cache.Enabled {
		return te, func() {}, nil
	}
	cache, err := tasks.OpenCache(cfg.Cache.Dir)
	if err != nil {
		return nil, nil, err
	}
	return cache.Wrap(te), func() { cache.Close() }, nil
}

func newRPCPool(cfg *config.Config, logDir string) (*rpc.Pool, error) {
	tracker, err := tool.ParseCommand(cfg.RPC.TrackerCommand)
	if err != nil {
		return nil, fmt.Errorf("rpc tracker: %w", err)
	}
	server, err := tool.ParseCommand(cfg.RPC.ServerCommand)
	if err != nil {
		return nil, fmt.Errorf("rpc server: %w", err)
	}
	return rpc.NewPool(rpc.StartOpts{
		Host:           cfg.RPC.Host,
		Port:           cfg.RPC.Port,
		PortEnd:        cfg.RPC.PortEnd,
		Key:            cfg.RPC.Key,
		TrackerCommand: tracker,
		ServerCommand:  server,
		Servers:        cfg.Tune.MaxParallel,
		DockerImage:    cfg.RPC.DockerImage,
		EnvFile:        cfg.RPC.EnvFile,
		LogDir:         logDir,
		ReadyTimeout:   cfg.RPC.ReadyTimeout,
	}), nil
}

func printSummary(w io.Writer, s *tune.Session) {
	ok := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed, color.Bold).SprintFunc()

	if len(s.Results) == 0 {
		fmt.Fprintln(w, "No tuning jobs ran.")
		return
	}
	for _, r := range s.Results {
		name := fmt.Sprintf("task %d", r.TaskID)
		if r.TaskID == tune.WholeSpace {
			name = "all tasks"
		}
		if r.OK {
			fmt.Fprintf(w, "  %s %s (%d records, %s)\n", ok("ok"), name,
				len(records.Lines(r.Records)), r.Duration.Round(time.Second))
			continue
		}
		fmt.Fprintf(w, "  %s %s: %v\n", failed("FAILED"), name, r.Err)
	}
	fmt.Fprintf(w, "%d/%d jobs succeeded in %s\n",
		len(s.Results)-len(s.FailedTasks()), len(s.Results), s.Duration.Round(time.Second))
}

// commandContext is the context of commands that only call the tool once.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
