package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/autotune/internal/config"
	"github.com/signalnine/autotune/internal/logging"
)

const defaultConfigFile = "autotune.yaml"

var (
	cfgFile     string
	flagLogLvl  string
	flagLogFile string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autotune",
		Short:         "Partitioned autotuning of compiled models",
		SilenceUsage:  true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file path")
	root.PersistentFlags().StringVar(&flagLogLvl, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")
	root.PersistentFlags().StringVar(&flagLogFile, "log-file", "", `log file ("default" for the XDG state dir); overrides logging.file`)
	root.AddCommand(newTuneCmd())
	root.AddCommand(newTasksCmd())
	root.AddCommand(newPickBestCmd())
	root.AddCommand(newReportCmd())
	return root
}

// configPath returns the config file to load. A missing default file means
// defaults and environment only.
func configPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		return cfgFile
	}
	if _, err := os.Stat(cfgFile); err != nil {
		return ""
	}
	return cfgFile
}

// loadConfig loads the configuration and sets up logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}
	lc := logging.Config{Level: cfg.Logging.Level, File: cfg.Logging.File, Console: true}
	if flagLogLvl != "" {
		lc.Level = flagLogLvl
	}
	if flagLogFile != "" {
		lc.File = flagLogFile
	}
	if err := logging.Init(lc); err != nil {
		return nil, err
	}
	return cfg, nil
}
