package tool

import (
	"strconv"
	"strings"
)

type Mode int

const (
	ModeAutoTVM Mode = iota
	ModeAutoScheduler
	ModeMetaScheduler
)

// TuneArgs are the flags of one `tune` invocation. Zero values are omitted
// so the tool's own defaults apply.
type TuneArgs struct {
	Model         string
	Target        string
	Mode          Mode
	Tuner         string
	Trials        int
	EarlyStopping int
	Parallel      int
	Timeout       int
	TuningRecords string
	Output        string
	Tasks         string
	RPCTracker    string
	RPCKey        string
	Extra         []string
}

// Argv returns the tool arguments, to be appended to the tool command line.
func (a *TuneArgs) Argv() []string {
	args := []string{"tune"}
	add := func(flag, value string) {
		if value != "" {
			args = append(args, flag, value)
		}
	}
	addInt := func(flag string, value int) {
		if value > 0 {
			args = append(args, flag, strconv.Itoa(value))
		}
	}

	add("--target", a.Target)
	switch a.Mode {
	case ModeAutoScheduler:
		args = append(args, "--enable-autoscheduler")
	case ModeMetaScheduler:
		args = append(args, "--enable-metascheduler")
	}
	add("--tuner", a.Tuner)
	addInt("--trials", a.Trials)
	addInt("--early-stopping", a.EarlyStopping)
	addInt("--parallel", a.Parallel)
	addInt("--timeout", a.Timeout)
	add("--tuning-records", a.TuningRecords)
	add("--output", a.Output)
	add("--tasks", a.Tasks)
	add("--rpc-tracker", a.RPCTracker)
	add("--rpc-key", a.RPCKey)
	args = append(args, a.Extra...)
	if a.Model != "" {
		args = append(args, a.Model)
	}
	return args
}

// TaskList formats a task selection for --tasks.
func TaskList(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// FlagValue returns the value following flag in argv.
func FlagValue(argv []string, flag string) (string, bool) {
	for i := 0; i+1 < len(argv); i++ {
		if argv[i] == flag {
			return argv[i+1], true
		}
	}
	return "", false
}
