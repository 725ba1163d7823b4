package tool_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autotune/internal/tool"
)

// TestHelperProcess stands in for the tuning tool. The first argument after
// "--" selects its behavior.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("AUTOTUNE_TOOL_HELPER") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	switch args[0] {
	case "ok":
		fmt.Println("tuning task 0")
		fmt.Fprintln(os.Stderr, "warning: fallback schedule")
		os.Exit(0)
	case "pwd":
		wd, _ := os.Getwd()
		fmt.Print(wd)
		os.Exit(0)
	case "fail":
		for i := 0; i < 30; i++ {
			fmt.Printf("line %d\n", i)
		}
		os.Exit(3)
	}
	os.Exit(2)
}

func helper(mode string) []string {
	return []string{os.Args[0], "-test.run=TestHelperProcess", "--", mode}
}

func helperExec() *tool.Exec {
	return &tool.Exec{Env: []string{"AUTOTUNE_TOOL_HELPER=1"}}
}

func TestExecRunCombinedOutput(t *testing.T) {
	out, err := helperExec().Run(context.Background(), helper("ok"))
	require.NoError(t, err)
	assert.Contains(t, out, "tuning task 0\n")
	assert.Contains(t, out, "warning: fallback schedule\n")
}

func TestExecRunDir(t *testing.T) {
	dir := t.TempDir()
	e := helperExec()
	e.Dir = dir
	out, err := e.Run(context.Background(), helper("pwd"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(out)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExecRunFailure(t *testing.T) {
	out, err := helperExec().Run(context.Background(), helper("fail"))
	require.Error(t, err)
	assert.Contains(t, out, "line 0\n", "full output is returned")
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "line 10\n")
	assert.Contains(t, err.Error(), "line 29")
	assert.NotContains(t, err.Error(), "line 9\n", "error keeps only the output tail")
}

func TestExecRunEmptyCommand(t *testing.T) {
	_, err := helperExec().Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestExecRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := helperExec().Run(ctx, helper("ok"))
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	argv, err := tool.ParseCommand(`python3 -m tvm.driver.tvmc --desired-layout "NCHW NHWC"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "-m", "tvm.driver.tvmc", "--desired-layout", "NCHW NHWC"}, argv)

	_, err = tool.ParseCommand("   ")
	assert.Error(t, err)

	_, err = tool.ParseCommand(`tvmc "unterminated`)
	assert.Error(t, err)
}

func TestTuneArgsArgv(t *testing.T) {
	a := tool.TuneArgs{
		Model:         "model.tflite",
		Target:        "c",
		Mode:          tool.ModeAutoScheduler,
		Trials:        10,
		Output:        "out.log",
		Tasks:         tool.TaskList([]int{1, 3}),
		RPCTracker:    "127.0.0.1:9000",
		RPCKey:        "sim",
		Extra:         []string{"--desired-layout", "NCHW"},
		EarlyStopping: 0,
	}
	assert.Equal(t, []string{
		"tune", "--target", "c", "--enable-autoscheduler", "--trials", "10",
		"--output", "out.log", "--tasks", "1,3",
		"--rpc-tracker", "127.0.0.1:9000", "--rpc-key", "sim",
		"--desired-layout", "NCHW", "model.tflite",
	}, a.Argv())

	v, ok := tool.FlagValue(a.Argv(), "--tasks")
	assert.True(t, ok)
	assert.Equal(t, "1,3", v)
	_, ok = tool.FlagValue(a.Argv(), "--tuner")
	assert.False(t, ok)
}
