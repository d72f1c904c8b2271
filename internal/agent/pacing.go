package agent

import (
	"context"
	"time"
)

// Pacing holds the fixed delays the orchestrator inserts between browser
// actions and oracle calls. It is injectable so tests run with zero delay.
type Pacing struct {
	// ActionSettle is slept after a dispatched action, giving the page time
	// to react before the next observation.
	ActionSettle time.Duration
	// OracleCall is slept before each oracle query to pace API calls.
	OracleCall time.Duration
	// ObserveRetry is slept before the single retry of an empty DOM snapshot.
	ObserveRetry time.Duration
}

// DefaultPacing matches the production timing of the original loop.
func DefaultPacing() Pacing {
	return Pacing{
		ActionSettle: 2 * time.Second,
		OracleCall:   time.Second,
		ObserveRetry: time.Second,
	}
}

// pause sleeps for d unless the context ends first. Zero and negative
// durations return immediately.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
