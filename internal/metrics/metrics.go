// Package metrics assembles per-task and session metrics of a tuning run.
package metrics

import (
	"errors"
	"fmt"
)

// Metric names.
const (
	ConfigSpaceSize      = "Config Space Size"
	TotalTrials          = "Total Trials"
	FailedTrials         = "Failed Trials"
	TuneDuration         = "Tune Duration [s]"
	TuneDurationPerTrial = "Tune Duration per Trial [s]"
	EarlyStopped         = "Early Stopped"
	TunedTasks           = "Tuned Tasks"
	FailedTasks          = "Failed Tasks"
)

// DefaultName keys the session-wide metrics.
const DefaultName = "default"

// ErrNoTrials means a task that ran successfully left no trial lines, so
// its per-trial duration is undefined.
var ErrNoTrials = errors.New("task finished without any trials")

type Value struct {
	Name    string `json:"name" yaml:"name"`
	Value   any    `json:"value" yaml:"value"`
	Primary bool   `json:"primary" yaml:"primary"`
}

// Metrics is an ordered set of named values. Adding an existing name
// replaces its value in place.
type Metrics struct {
	Name   string  `json:"name" yaml:"name"`
	Values []Value `json:"values" yaml:"values"`
}

func New(name string) *Metrics {
	return &Metrics{Name: name}
}

func (m *Metrics) Add(name string, value any, primary bool) {
	for i := range m.Values {
		if m.Values[i].Name == name {
			m.Values[i] = Value{Name: name, Value: value, Primary: primary}
			return
		}
	}
	m.Values = append(m.Values, Value{Name: name, Value: value, Primary: primary})
}

func (m *Metrics) Get(name string) (any, bool) {
	for _, v := range m.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return nil, false
}

// TaskName keys the metrics of one task.
func TaskName(id int) string {
	return fmt.Sprintf("task%d", id)
}

// TaskSummary is what the collector needs to know about one task.
type TaskSummary struct {
	ID           int
	SpaceSize    int
	OK           bool
	Total        int
	Failed       int
	DurationS    float64
	EarlyStopped bool
}

// Collect builds the "default" metrics followed by one entry per task in
// the given order. bestLines is the number of records in the best log.
func Collect(tasks []TaskSummary, bestLines int, total, failed int) ([]*Metrics, error) {
	def := New(DefaultName)
	var space, failedTasks int
	perTask := make([]*Metrics, 0, len(tasks))
	for _, t := range tasks {
		space += t.SpaceSize
		m := New(TaskName(t.ID))
		m.Add(ConfigSpaceSize, t.SpaceSize, true)
		m.Add(TotalTrials, t.Total, true)
		m.Add(FailedTrials, t.Failed, true)
		m.Add(TuneDuration, t.DurationS, false)
		if t.OK {
			if t.Total == 0 {
				return nil, fmt.Errorf("%s: %w", m.Name, ErrNoTrials)
			}
			m.Add(TuneDurationPerTrial, t.DurationS/float64(t.Total), false)
		} else {
			failedTasks++
		}
		m.Add(EarlyStopped, t.EarlyStopped, false)
		perTask = append(perTask, m)
	}

	if len(tasks) > 0 {
		def.Add(ConfigSpaceSize, space, true)
	}
	def.Add(TotalTrials, total, true)
	def.Add(FailedTrials, failed, true)
	def.Add(TunedTasks, bestLines, true)
	if len(tasks) > 0 {
		def.Add(FailedTasks, failedTasks, false)
	}
	return append([]*Metrics{def}, perTask...), nil
}
