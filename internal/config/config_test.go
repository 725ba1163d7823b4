package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autotune/internal/config"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	require.NoError(t, err)
	assert.Equal(t, "tvmc", cfg.Tool)
	assert.Equal(t, "models/resnet18.tflite", cfg.Model)
	assert.Equal(t, "c", cfg.Target)
	assert.True(t, cfg.Tune.AutoTVM)
	assert.True(t, cfg.Tune.Enabled())
	assert.Equal(t, 100, cfg.Tune.Trials)
	assert.Equal(t, "ga", cfg.Tune.Tuner)
	assert.Equal(t, 1, cfg.Tune.MaxParallel)
	assert.Equal(t, 0, cfg.Tune.NumWorkers)
	assert.False(t, cfg.RPC.Enabled)
	assert.Equal(t, 30*time.Second, cfg.RPC.ReadyTimeout)
	assert.Equal(t, "results", cfg.Results.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	require.NoError(t, err)
	assert.Equal(t, "python3 -m tvm.driver.tvmc", cfg.Tool)
	assert.Equal(t, []string{"--desired-layout", "NCHW"}, cfg.ToolArgs)
	assert.Equal(t, "xgb", cfg.Tune.Tuner)
	assert.Equal(t, 40, cfg.Tune.TrialsSingle)
	assert.Equal(t, 20, cfg.Tune.EarlyStopping)
	assert.Equal(t, 4, cfg.Tune.NumWorkers)
	assert.True(t, cfg.Tune.Append)
	assert.Equal(t, "results/records.log", cfg.Tune.ResultsFile)
	assert.True(t, cfg.RPC.Enabled)
	assert.Equal(t, 9100, cfg.RPC.Port)
	assert.Equal(t, 9150, cfg.RPC.PortEnd)
	assert.Equal(t, "esp32c3", cfg.RPC.Key)
	assert.Equal(t, "python3 -m tvm.exec.rpc_tracker", cfg.RPC.TrackerCommand)
	assert.Equal(t, 45*time.Second, cfg.RPC.ReadyTimeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "default", cfg.Logging.File)
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Tune.Enabled())
	assert.Equal(t, "python3 -m tvm.autotvm.record", cfg.Picker)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AUTOTUNE_TUNE_TRIALS", "64")
	t.Setenv("AUTOTUNE_RPC_KEY", "stm32")
	cfg, err := config.Load("../../testdata/minimal.yaml")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Tune.Trials)
	assert.Equal(t, "stm32", cfg.RPC.Key)
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load("../../testdata/invalid.yaml")
	assert.Error(t, err)
}

func TestLoadConflictingModes(t *testing.T) {
	_, err := config.Load("../../testdata/conflicting_modes.yaml")
	assert.ErrorIs(t, err, config.ErrConflictingModes)
}

func TestLoadWorkerConflict(t *testing.T) {
	_, err := config.Load("../../testdata/worker_conflict.yaml")
	assert.ErrorIs(t, err, config.ErrWorkerConflict)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Tool:  "tvmc",
			Model: "m.tflite",
			Tune:  config.Tune{AutoTVM: true, Trials: 10, MaxParallel: 1},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
		ok      bool
	}{
		{name: "valid", mutate: func(*config.Config) {}, ok: true},
		{name: "single worker with tasks", mutate: func(c *config.Config) { c.Tune.NumWorkers = 1; c.Tune.Tasks = []int{2} }, ok: true},
		{name: "workers with appended results file", mutate: func(c *config.Config) {
			c.Tune.NumWorkers = 4
			c.Tune.ResultsFile = "r.log"
			c.Tune.Append = true
		}, ok: true},
		{name: "tuning disabled needs no model", mutate: func(c *config.Config) { c.Tune.AutoTVM = false; c.Model = "" }, ok: true},
		{name: "three modes", mutate: func(c *config.Config) { c.Tune.AutoScheduler = true; c.Tune.MetaScheduler = true }, wantErr: config.ErrConflictingModes},
		{name: "workers with tasks", mutate: func(c *config.Config) { c.Tune.NumWorkers = 2; c.Tune.Tasks = []int{1} }, wantErr: config.ErrWorkerConflict},
		{name: "workers with fixed results file", mutate: func(c *config.Config) { c.Tune.NumWorkers = 2; c.Tune.ResultsFile = "r.log" }, wantErr: config.ErrWorkerConflict},
		{name: "negative workers", mutate: func(c *config.Config) { c.Tune.NumWorkers = -1 }},
		{name: "zero trials", mutate: func(c *config.Config) { c.Tune.Trials = 0 }},
		{name: "missing model", mutate: func(c *config.Config) { c.Model = "" }},
		{name: "blank tool", mutate: func(c *config.Config) { c.Tool = "  " }},
		{name: "negative early stopping", mutate: func(c *config.Config) { c.Tune.EarlyStopping = -5 }},
		{name: "zero parallel", mutate: func(c *config.Config) { c.Tune.MaxParallel = 0 }},
		{name: "rpc bad range", mutate: func(c *config.Config) {
			c.RPC = config.RPC{Enabled: true, Port: 9100, PortEnd: 9000, Key: "k"}
		}},
		{name: "rpc empty key", mutate: func(c *config.Config) {
			c.RPC = config.RPC{Enabled: true, Port: 9000, PortEnd: 9100}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
