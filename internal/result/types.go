package result

import (
	"time"

	"github.com/signalnine/autotune/internal/metrics"
)

// Report is the persisted summary of one session, stored as report.json
// next to the record logs.
type Report struct {
	Session     string             `json:"session" yaml:"session"`
	StartedAt   time.Time          `json:"started_at" yaml:"started_at"`
	DurationS   float64            `json:"duration_s" yaml:"duration_s"`
	Budget      Budget             `json:"budget" yaml:"budget"`
	Tasks       []TaskStatus       `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	FailedTasks []int              `json:"failed_tasks,omitempty" yaml:"failed_tasks,omitempty"`
	Metrics     []*metrics.Metrics `json:"metrics" yaml:"metrics"`
}

type Budget struct {
	Trials        int `json:"trials" yaml:"trials"`
	EarlyStopping int `json:"early_stopping" yaml:"early_stopping"`
}

// TaskStatus is the outcome of one dispatched job. ID is -1 for an
// unpartitioned run.
type TaskStatus struct {
	ID        int     `json:"id" yaml:"id"`
	SpaceSize int     `json:"space_size,omitempty" yaml:"space_size,omitempty"`
	OK        bool    `json:"ok" yaml:"ok"`
	DurationS float64 `json:"duration_s" yaml:"duration_s"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
}
