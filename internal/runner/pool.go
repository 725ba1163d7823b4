package runner

import (
	"fmt"
	"runtime/debug"
)

type Job[T any] func() (T, error)

// Outcome is the result of one job: either Value or Err. Index is the
// job's position in the submitted slice.
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

func (o Outcome[T]) OK() bool { return o.Err == nil }

// RunPool executes jobs on maxWorkers goroutines fed from a queue. A failing
// or panicking job never affects its siblings. Outcomes are returned in
// submission order; onDone, if non-nil, sees them in completion order from
// the calling goroutine.
func RunPool[T any](maxWorkers int, jobs []Job[T], onDone func(Outcome[T])) []Outcome[T] {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > len(jobs) {
		maxWorkers = len(jobs)
	}

	queue := make(chan int)
	done := make(chan Outcome[T])

	for w := 0; w < maxWorkers; w++ {
		go func() {
			for i := range queue {
				done <- runJob(i, jobs[i])
			}
		}()
	}
	go func() {
		for i := range jobs {
			queue <- i
		}
		close(queue)
	}()

	outcomes := make([]Outcome[T], len(jobs))
	for range jobs {
		o := <-done
		outcomes[o.Index] = o
		if onDone != nil {
			onDone(o)
		}
	}
	return outcomes
}

func runJob[T any](i int, job Job[T]) (o Outcome[T]) {
	o.Index = i
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("job %d panicked: %v\n%s", i, r, debug.Stack())
		}
	}()
	o.Value, o.Err = job()
	return o
}
