package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrConflictingModes = errors.New("at most one of autotvm_enable, autoscheduler_enable and metascheduler_enable may be set")
	ErrWorkerConflict   = errors.New("num_workers > 1 cannot be combined with an explicit task selection or a fixed results file")
)

type Config struct {
	Tool     string   `mapstructure:"tool"`
	Picker   string   `mapstructure:"picker"`
	Model    string   `mapstructure:"model"`
	Target   string   `mapstructure:"target"`
	ToolArgs []string `mapstructure:"tool_args"`
	Tune     Tune     `mapstructure:"tune"`
	RPC      RPC      `mapstructure:"rpc"`
	Cache    Cache    `mapstructure:"cache"`
	Results  Results  `mapstructure:"results"`
	Logging  Logging  `mapstructure:"logging"`
}

type Tune struct {
	AutoTVM       bool   `mapstructure:"autotvm_enable"`
	AutoScheduler bool   `mapstructure:"autoscheduler_enable"`
	MetaScheduler bool   `mapstructure:"metascheduler_enable"`
	Tuner         string `mapstructure:"tuner"`
	Trials        int    `mapstructure:"trials"`
	TrialsSingle  int    `mapstructure:"trials_single"`
	EarlyStopping int    `mapstructure:"early_stopping"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	Timeout       int    `mapstructure:"timeout"`
	ResultsFile   string `mapstructure:"results_file"`
	NumWorkers    int    `mapstructure:"num_workers"`
	Append        bool   `mapstructure:"append"`
	Tasks         []int  `mapstructure:"tasks"`
}

// Enabled reports whether any tuning mode is selected.
func (t *Tune) Enabled() bool {
	return t.AutoTVM || t.AutoScheduler || t.MetaScheduler
}

type RPC struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	PortEnd        int           `mapstructure:"port_end"`
	Key            string        `mapstructure:"key"`
	TrackerCommand string        `mapstructure:"tracker_command"`
	ServerCommand  string        `mapstructure:"server_command"`
	DockerImage    string        `mapstructure:"docker_image"`
	EnvFile        string        `mapstructure:"env_file"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
}

type Cache struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type Results struct {
	Dir string `mapstructure:"dir"`
}

type Logging struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tool", "tvmc")
	v.SetDefault("picker", "python3 -m tvm.autotvm.record")
	v.SetDefault("model", "")
	v.SetDefault("target", "c")
	v.SetDefault("tool_args", []string{})

	v.SetDefault("tune.autotvm_enable", false)
	v.SetDefault("tune.autoscheduler_enable", false)
	v.SetDefault("tune.metascheduler_enable", false)
	v.SetDefault("tune.tuner", "ga")
	v.SetDefault("tune.trials", 10)
	v.SetDefault("tune.trials_single", 0)
	v.SetDefault("tune.early_stopping", 0)
	v.SetDefault("tune.max_parallel", 1)
	v.SetDefault("tune.timeout", 100)
	v.SetDefault("tune.results_file", "")
	v.SetDefault("tune.num_workers", 0)
	v.SetDefault("tune.append", false)
	v.SetDefault("tune.tasks", []int{})

	v.SetDefault("rpc.enabled", false)
	v.SetDefault("rpc.host", "127.0.0.1")
	v.SetDefault("rpc.port", 9000)
	v.SetDefault("rpc.port_end", 9199)
	v.SetDefault("rpc.key", "default")
	v.SetDefault("rpc.tracker_command", "python3 -m tvm.exec.rpc_tracker")
	v.SetDefault("rpc.server_command", "python3 -m tvm.exec.rpc_server")
	v.SetDefault("rpc.docker_image", "")
	v.SetDefault("rpc.env_file", "")
	v.SetDefault("rpc.ready_timeout", "30s")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.dir", "")

	v.SetDefault("results.dir", "results")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// Load reads the YAML config at path, applies AUTOTUNE_* environment
// overrides (AUTOTUNE_TUNE_TRIALS=50) and validates the result. An empty
// path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AUTOTUNE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the preconditions a session relies on. Flag overrides
// applied after Load must be re-validated.
func Validate(cfg *Config) error {
	t := &cfg.Tune
	modes := 0
	for _, on := range []bool{t.AutoTVM, t.AutoScheduler, t.MetaScheduler} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return ErrConflictingModes
	}
	if t.NumWorkers < 0 {
		return fmt.Errorf("num_workers must not be negative")
	}
	if t.NumWorkers > 1 && len(t.Tasks) > 0 {
		return fmt.Errorf("%w: tasks=%v", ErrWorkerConflict, t.Tasks)
	}
	if t.NumWorkers > 1 && t.ResultsFile != "" && !t.Append {
		return fmt.Errorf("%w: results_file=%s", ErrWorkerConflict, t.ResultsFile)
	}
	if t.Enabled() {
		if strings.TrimSpace(cfg.Tool) == "" {
			return fmt.Errorf("tool is required")
		}
		if cfg.Model == "" {
			return fmt.Errorf("model is required")
		}
		if t.Trials < 1 {
			return fmt.Errorf("trials must be at least 1")
		}
	}
	if t.TrialsSingle < 0 || t.EarlyStopping < 0 {
		return fmt.Errorf("trials_single and early_stopping must not be negative")
	}
	if t.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1")
	}
	if cfg.RPC.Enabled {
		if cfg.RPC.Port < 1 || cfg.RPC.PortEnd < cfg.RPC.Port {
			return fmt.Errorf("rpc port range %d..%d is invalid", cfg.RPC.Port, cfg.RPC.PortEnd)
		}
		if cfg.RPC.Key == "" {
			return fmt.Errorf("rpc key is required")
		}
	}
	return nil
}
