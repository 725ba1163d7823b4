package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/autotune/internal/tune"
)

// Artifact file names inside a run directory.
const (
	RecordsFile = "tuning_results.log.txt"
	BestFile    = "best_tuning_results.log.txt"
	StdoutFile  = "tune_stdout.log.txt"
	ReportFile  = "report.json"
)

// CreateRunDir creates <baseDir>/runs/<timestamp> and points
// <baseDir>/latest at it.
func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir, err := filepath.Abs(filepath.Join(runsDir, stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// FromSession builds the report of a finished session.
func FromSession(s *tune.Session) *Report {
	r := &Report{
		Session:     s.ID,
		StartedAt:   s.StartedAt.UTC(),
		DurationS:   s.Duration.Seconds(),
		Budget:      Budget{Trials: s.Budget.Trials, EarlyStopping: s.Budget.EarlyStopping},
		FailedTasks: s.FailedTasks(),
		Metrics:     s.Metrics,
	}
	space := make(map[int]int, len(s.Tasks))
	for _, t := range s.Tasks {
		space[t.ID] = t.SpaceSize
	}
	for _, res := range s.Results {
		st := TaskStatus{
			ID:        res.TaskID,
			SpaceSize: space[res.TaskID],
			OK:        res.OK,
			DurationS: res.Duration.Seconds(),
		}
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
		r.Tasks = append(r.Tasks, st)
	}
	return r
}

// WriteArtifacts stores the logs and the report of s in runDir.
func WriteArtifacts(runDir string, s *tune.Session) error {
	files := []struct {
		name, content string
	}{
		{RecordsFile, s.MergedLog},
		{BestFile, s.BestLog},
		{StdoutFile, s.Stdout},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(runDir, f.name), []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return WriteReport(runDir, FromSession(s))
}

func WriteReport(runDir string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, ReportFile), data, 0o644)
}

// ReadReport loads report.json from a run directory.
func ReadReport(runDir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ReportFile))
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return &r, nil
}
