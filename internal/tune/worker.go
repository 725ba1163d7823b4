package tune

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalnine/autotune/internal/records"
	"github.com/signalnine/autotune/internal/tasks"
	"github.com/signalnine/autotune/internal/tool"
)

var errNoRecords = errors.New("tool wrote no records")

// WholeSpace is the TaskID of an unpartitioned run.
const WholeSpace = -1

// WorkerResult is what one tool invocation produced. It is owned by the
// worker until the pool hands it back and is not modified afterwards.
type WorkerResult struct {
	TaskID   int
	Stdout   string
	Records  string
	Duration time.Duration
	OK       bool
	Err      error
}

// job is the immutable input of one worker.
type job struct {
	task   tasks.Task
	budget Budget
	// base carries the session-wide flags; Tasks, Trials, EarlyStopping
	// and Output are filled in per job.
	base    tool.TuneArgs
	command []string
	runner  tool.Runner
	workDir string
}

func recordsPath(workDir string, taskID int) string {
	if taskID == WholeSpace {
		return filepath.Join(workDir, "tuning_results.log.txt")
	}
	return filepath.Join(workDir, fmt.Sprintf("tuning_results_%d.log.txt", taskID))
}

// run invokes the tool once and reads back the records it wrote. Errors
// are returned to the pool, which records them against the task.
func (j *job) run(ctx context.Context) (WorkerResult, error) {
	res := WorkerResult{TaskID: j.task.ID}
	out := recordsPath(j.workDir, j.task.ID)
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return res, fmt.Errorf("clearing %s: %w", out, err)
	}

	args := j.base
	args.Trials = j.budget.Trials
	args.EarlyStopping = j.budget.EarlyStopping
	args.Output = out
	if j.task.ID != WholeSpace {
		args.Tasks = strconv.Itoa(j.task.ID)
	}
	argv := append(append([]string{}, j.command...), args.Argv()...)

	start := time.Now()
	stdout, err := j.runner.Run(ctx, argv)
	res.Duration = time.Since(start)
	res.Stdout = stdout
	if err != nil {
		return res, fmt.Errorf("tuning task %d: %w", j.task.ID, err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return res, fmt.Errorf("reading records of task %d: %w", j.task.ID, err)
	}
	if len(records.Lines(string(data))) == 0 {
		return res, fmt.Errorf("task %d: %w", j.task.ID, errNoRecords)
	}
	res.Records = string(data)
	res.OK = true
	return res, nil
}
