package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/autotune/internal/records"
	"github.com/signalnine/autotune/internal/tool"
)

func newPickBestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick-best <records> <output>",
		Short: "Reduce a records log to the best record per workload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading records: %w", err)
			}
			pickerCmd, err := tool.ParseCommand(cfg.Picker)
			if err != nil {
				return err
			}

			ctx, stop := commandContext(cmd)
			defer stop()
			picker := &records.ToolPicker{Runner: &tool.Exec{}, Command: pickerCmd}
			if err := picker.PickBest(ctx, in, out); err != nil {
				return err
			}

			best, err := os.ReadFile(out)
			if err != nil {
				return fmt.Errorf("reading best records: %w", err)
			}
			c := records.Count(string(data))
			fmt.Fprintf(cmd.OutOrStdout(), "%d records (%d failed) -> %d best in %s\n",
				c.Total, c.Failed, len(records.Lines(string(best))), out)
			return nil
		},
	}
}
