package pipeline

import "context"

// DefaultMaxConcurrentJobs bounds system-wide in-flight inspections.
const DefaultMaxConcurrentJobs = 5

// Governor is the admission control for the pipeline: one counting
// semaphore shared by all submissions. The limit-plus-first excess
// submission blocks until a running job completes or fails.
type Governor struct {
	slots chan struct{}
}

// NewGovernor builds a governor with the given job limit.
func NewGovernor(limit int) *Governor {
	if limit <= 0 {
		limit = DefaultMaxConcurrentJobs
	}
	return &Governor{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot frees or the context is cancelled.
func (g *Governor) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *Governor) Release() {
	<-g.slots
}

// InFlight reports the number of currently held slots.
func (g *Governor) InFlight() int {
	return len(g.slots)
}

// Limit reports the governor's capacity.
func (g *Governor) Limit() int {
	return cap(g.slots)
}
