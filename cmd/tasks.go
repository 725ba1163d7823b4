package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/signalnine/autotune/internal/tool"
)

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tuning tasks of the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Model == "" {
				return fmt.Errorf("model is required")
			}
			command, err := tool.ParseCommand(cfg.Tool)
			if err != nil {
				return err
			}
			enum, cleanup, err := newEnumerator(cfg, &tool.Exec{}, command)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := commandContext(cmd)
			defer stop()
			all, err := enum.Enumerate(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK\tCONFIG SPACE")
			total := 0
			for _, t := range all {
				total += t.SpaceSize
				fmt.Fprintf(tw, "%d\t%s\n", t.ID, humanize.Comma(int64(t.SpaceSize)))
			}
			fmt.Fprintf(tw, "%d tasks\t%s\n", len(all), humanize.Comma(int64(total)))
			return tw.Flush()
		},
	}
}
