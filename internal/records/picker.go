package records

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/signalnine/autotune/internal/tool"
)

// Picker reduces a record log to the best record per task.
type Picker interface {
	PickBest(ctx context.Context, in, out string) error
}

// ToolPicker runs an external record picker:
//
//	<command> --mode pick --i <in> --o <out>
type ToolPicker struct {
	Runner  tool.Runner
	Command []string
}

func (p *ToolPicker) PickBest(ctx context.Context, in, out string) error {
	argv := append(append([]string{}, p.Command...), "--mode", "pick", "--i", in, "--o", out)
	if _, err := p.Runner.Run(ctx, argv); err != nil {
		return fmt.Errorf("picking best records: %w", err)
	}
	return nil
}

// PickBest writes merged to workDir, runs the picker on it and returns the
// best log. An empty merged log yields an empty best log without invoking
// the picker.
func PickBest(ctx context.Context, p Picker, merged, workDir string) (string, error) {
	if len(Lines(merged)) == 0 {
		return "", nil
	}
	in := filepath.Join(workDir, "merged.log.txt")
	out := filepath.Join(workDir, "best.log.txt")
	if err := os.WriteFile(in, []byte(merged), 0o644); err != nil {
		return "", fmt.Errorf("writing merged log: %w", err)
	}
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("clearing best log: %w", err)
	}
	if err := p.PickBest(ctx, in, out); err != nil {
		return "", err
	}
	data, err := os.ReadFile(out)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading best log: %w", err)
	}
	return string(data), nil
}
