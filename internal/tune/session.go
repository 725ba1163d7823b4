// Package tune runs autotuning sessions: it partitions the search space into
// tasks, tunes them on a bounded worker pool and aggregates the results.
package tune

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/autotune/internal/config"
	"github.com/signalnine/autotune/internal/logging"
	"github.com/signalnine/autotune/internal/metrics"
	"github.com/signalnine/autotune/internal/records"
	"github.com/signalnine/autotune/internal/rpc"
	"github.com/signalnine/autotune/internal/runner"
	"github.com/signalnine/autotune/internal/tasks"
	"github.com/signalnine/autotune/internal/tool"
)

// RPCPool is the measurement infrastructure a session brings up for its
// duration.
type RPCPool interface {
	Start(ctx context.Context) (rpc.Endpoint, error)
	Stop() error
}

// Engine holds the collaborators of a session. Runner, Command and Picker
// are required; Enumerator defaults to listing tasks with the tool; RPC is
// nil when no measurement infrastructure is needed.
type Engine struct {
	Config     *config.Config
	Runner     tool.Runner
	Command    []string
	Enumerator tasks.Enumerator
	Picker     records.Picker
	RPC        RPCPool
	// WorkDir receives per-task record files. A temporary directory is
	// used and removed when empty.
	WorkDir string
}

// Session is the outcome of one Run.
type Session struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Tasks     []tasks.Task
	Budget    Budget
	// Results holds one entry per dispatched job, in submission order.
	Results   []WorkerResult
	MergedLog string
	BestLog   string
	Stdout    string
	Metrics   []*metrics.Metrics
}

// FailedTasks returns the IDs of tasks whose job failed.
func (s *Session) FailedTasks() []int {
	var ids []int
	for _, r := range s.Results {
		if !r.OK {
			ids = append(ids, r.TaskID)
		}
	}
	return ids
}

// BaseArgs returns the tool flags shared by every invocation of a session.
func BaseArgs(cfg *config.Config) tool.TuneArgs {
	mode := tool.ModeAutoTVM
	switch {
	case cfg.Tune.AutoScheduler:
		mode = tool.ModeAutoScheduler
	case cfg.Tune.MetaScheduler:
		mode = tool.ModeMetaScheduler
	}
	return tool.TuneArgs{
		Model:    cfg.Model,
		Target:   cfg.Target,
		Mode:     mode,
		Tuner:    cfg.Tune.Tuner,
		Parallel: cfg.Tune.MaxParallel,
		Timeout:  cfg.Tune.Timeout,
		Extra:    cfg.ToolArgs,
	}
}

// Run executes the session pipeline: start RPC, enumerate tasks, tune them,
// merge records, pick the best ones and collect metrics. Failed tasks are
// reported in the session; only precondition and infrastructure errors
// abort it.
func (e *Engine) Run(ctx context.Context) (s *Session, err error) {
	cfg := e.Config
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s = &Session{ID: uuid.New().String(), StartedAt: time.Now()}
	logger := logging.Get("tune").With("session", s.ID[:8])
	defer func() {
		if s != nil {
			s.Duration = time.Since(s.StartedAt)
		}
	}()

	if !cfg.Tune.Enabled() {
		return s, e.loadExisting(ctx, s)
	}

	workDir, cleanup, err := e.workDir(s.ID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	base := BaseArgs(cfg)
	if cfg.Tune.Append && cfg.Tune.ResultsFile != "" {
		if _, err := os.Stat(cfg.Tune.ResultsFile); err == nil {
			base.TuningRecords = cfg.Tune.ResultsFile
		}
	}

	if e.RPC != nil {
		ep, err := e.RPC.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("starting rpc pool: %w", err)
		}
		defer func() {
			if stopErr := e.RPC.Stop(); stopErr != nil {
				logger.Warn("stopping rpc pool", "err", stopErr)
			}
		}()
		base.RPCTracker = ep.Tracker()
		base.RPCKey = ep.Key
	}

	var jobs []*job
	if cfg.Tune.NumWorkers == 0 {
		s.Budget = GlobalBudget(cfg.Tune.Trials, cfg.Tune.EarlyStopping)
		if len(cfg.Tune.Tasks) > 0 {
			base.Tasks = tool.TaskList(cfg.Tune.Tasks)
		}
		jobs = append(jobs, &job{
			task:    tasks.Task{ID: WholeSpace},
			budget:  s.Budget,
			base:    base,
			command: e.Command,
			runner:  e.Runner,
			workDir: workDir,
		})
	} else {
		all, err := e.enumerator().Enumerate(ctx)
		if err != nil {
			return nil, err
		}
		s.Tasks = all
		if cfg.Tune.NumWorkers == 1 {
			s.Tasks = tasks.Select(all, cfg.Tune.Tasks)
		}
		s.Budget = SplitBudget(cfg.Tune.Trials, len(s.Tasks), cfg.Tune.TrialsSingle, cfg.Tune.EarlyStopping)
		if cfg.Tune.TrialsSingle <= 0 && cfg.Tune.Trials < len(s.Tasks) {
			logger.Warn("trial budget is smaller than the number of tasks; every task gets one trial",
				"trials", cfg.Tune.Trials, "tasks", len(s.Tasks))
		}
		logger.Info("tasks enumerated", "tasks", len(s.Tasks),
			"trials_single", s.Budget.Trials, "early_stopping", s.Budget.EarlyStopping)
		for _, t := range s.Tasks {
			jobs = append(jobs, &job{
				task:    t,
				budget:  s.Budget,
				base:    base,
				command: e.Command,
				runner:  e.Runner,
				workDir: workDir,
			})
		}
	}

	s.Results = e.dispatch(ctx, jobs, max(1, cfg.Tune.NumWorkers))

	logs := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		if r.OK {
			logs = append(logs, r.Records)
		}
	}
	s.MergedLog = records.Merge(logs...)
	s.Stdout = joinStdout(s.Results)

	if err := e.persist(s.MergedLog); err != nil {
		return nil, err
	}
	return s, e.finish(ctx, s, workDir)
}

// dispatch runs every job on a pool of the given size and converts the
// outcomes into results, in submission order.
func (e *Engine) dispatch(ctx context.Context, jobs []*job, workers int) []WorkerResult {
	logger := logging.Get("tune")
	poolJobs := make([]runner.Job[WorkerResult], len(jobs))
	for i, j := range jobs {
		poolJobs[i] = func() (WorkerResult, error) { return j.run(ctx) }
	}

	outcomes := runner.RunPool(workers, poolJobs, func(o runner.Outcome[WorkerResult]) {
		id := jobs[o.Index].task.ID
		if o.OK() {
			logger.Info("task tuned", "task", id, "duration", o.Value.Duration.Round(time.Millisecond))
			return
		}
		logger.Error("task failed", "task", id, "err", o.Err)
	})

	results := make([]WorkerResult, len(outcomes))
	for i, o := range outcomes {
		r := o.Value
		r.TaskID = jobs[i].task.ID
		if !o.OK() {
			r.OK = false
			r.Records = ""
			r.Err = o.Err
		}
		results[i] = r
	}
	return results
}

// finish picks the best records and assembles the metrics.
func (e *Engine) finish(ctx context.Context, s *Session, workDir string) error {
	best, err := records.PickBest(ctx, e.Picker, s.MergedLog, workDir)
	if err != nil {
		return err
	}
	s.BestLog = best

	var summaries []metrics.TaskSummary
	if len(s.Tasks) > 0 {
		for i, t := range s.Tasks {
			r := s.Results[i]
			c := records.Count(r.Records)
			summaries = append(summaries, metrics.TaskSummary{
				ID:           t.ID,
				SpaceSize:    t.SpaceSize,
				OK:           r.OK,
				Total:        c.Total,
				Failed:       c.Failed,
				DurationS:    r.Duration.Seconds(),
				EarlyStopped: r.OK && records.EarlyStopped(c, s.Budget.Trials, s.Budget.EarlyStopping, t.SpaceSize),
			})
		}
	}
	c := records.Count(s.MergedLog)
	s.Metrics, err = metrics.Collect(summaries, len(records.Lines(best)), c.Total, c.Failed)
	return err
}

// loadExisting fills a session from the configured results file when
// tuning is disabled. Without a results file the session stays empty.
func (e *Engine) loadExisting(ctx context.Context, s *Session) error {
	path := e.Config.Tune.ResultsFile
	if path == "" {
		return nil
	}
	merged, err := records.ReadStore(path)
	if err != nil {
		return err
	}
	s.MergedLog = records.Merge(merged)
	workDir, cleanup, err := e.workDir(s.ID)
	if err != nil {
		return err
	}
	defer cleanup()
	return e.finish(ctx, s, workDir)
}

// persist appends the merged log to the configured results file in append
// mode. The results file is never truncated; without append it is left
// untouched and the merged log only lands in the run artifacts.
func (e *Engine) persist(merged string) error {
	t := e.Config.Tune
	if t.ResultsFile == "" || !t.Append {
		return nil
	}
	return records.AppendStore(t.ResultsFile, merged)
}

func (e *Engine) enumerator() tasks.Enumerator {
	if e.Enumerator != nil {
		return e.Enumerator
	}
	return &tasks.ToolEnumerator{Runner: e.Runner, Command: e.Command, Args: BaseArgs(e.Config)}
}

func (e *Engine) workDir(id string) (string, func(), error) {
	if e.WorkDir != "" {
		if err := os.MkdirAll(e.WorkDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("creating work dir: %w", err)
		}
		return e.WorkDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "autotune-"+id[:8]+"-")
	if err != nil {
		return "", nil, fmt.Errorf("creating work dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func joinStdout(results []WorkerResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.TaskID == WholeSpace {
			b.WriteString("=== all tasks ===\n")
		} else {
			fmt.Fprintf(&b, "=== task %d ===\n", r.TaskID)
		}
		b.WriteString(r.Stdout)
		if r.Stdout != "" && !strings.HasSuffix(r.Stdout, "\n") {
			b.WriteByte('\n')
		}
		if r.Err != nil {
			fmt.Fprintf(&b, "ERROR: %v\n", r.Err)
		}
	}
	return b.String()
}
