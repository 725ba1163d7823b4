// Package tasks discovers the independently tunable tasks of a model.
package tasks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/signalnine/autotune/internal/logging"
	"github.com/signalnine/autotune/internal/tool"
)

// ListingMarker precedes the task listing in the tool's output.
const ListingMarker = "Available Tasks for tuning"

// ErrNoTaskListing means the tool output has no task listing, which points
// at an incompatible tool version.
var ErrNoTaskListing = errors.New("tool output has no task listing")

var taskLine = regexp.MustCompile(`^\s*(\d+)\.\s.*\(len=(\d+)\)\s*$`)

// Task is one independently tunable unit of the search space.
type Task struct {
	ID        int `json:"id"`
	SpaceSize int `json:"space_size"`
}

// Enumerator lists the tasks of a model, in listing order.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Task, error)
}

// ToolEnumerator runs the tuning tool in "--tasks list" mode.
type ToolEnumerator struct {
	Runner  tool.Runner
	Command []string
	Args    tool.TuneArgs
}

func (e *ToolEnumerator) argv() []string {
	args := e.Args
	args.Tasks = "list"
	args.Trials = 0
	args.EarlyStopping = 0
	args.TuningRecords = ""
	if args.Output == "" {
		args.Output = discardPath
	}
	return append(append([]string{}, e.Command...), args.Argv()...)
}

func (e *ToolEnumerator) Enumerate(ctx context.Context) ([]Task, error) {
	out, err := e.Runner.Run(ctx, e.argv())
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return ParseListing(out)
}

// ParseListing extracts tasks from the tool's listing output.
func ParseListing(out string) ([]Task, error) {
	logger := logging.Get("tasks")
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	found := false
	seen := map[int]bool{}
	var tasks []Task
	for sc.Scan() {
		line := sc.Text()
		if !found {
			found = strings.Contains(line, ListingMarker)
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := taskLine.FindStringSubmatch(line)
		if m == nil {
			logger.Debug("ignoring listing line", "line", line)
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("parsing task index in %q: %w", line, err)
		}
		size, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("parsing space size in %q: %w", line, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate task %d in listing", id)
		}
		seen[id] = true
		tasks = append(tasks, Task{ID: id, SpaceSize: size})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading task listing: %w", err)
	}
	if !found {
		return nil, ErrNoTaskListing
	}
	return tasks, nil
}

// Select keeps the tasks whose IDs are in ids, preserving listing order.
// An empty ids keeps everything.
func Select(all []Task, ids []int) []Task {
	if len(ids) == 0 {
		return all
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Task
	for _, t := range all {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out
}
