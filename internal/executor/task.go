package executor

import "context"

// sentinel is an internal no-op task used to wake or stop the run loop.
type sentinel struct {
	fn func()
}

func newSentinel(fn func()) *sentinel {
	return &sentinel{fn: fn}
}

func (s *sentinel) Run() {
	if s.fn != nil {
		s.fn()
	}
}

func (s *sentinel) Fail(error) {}

func (s *sentinel) Context() context.Context {
	return context.Background()
}

// Stats is a point-in-time view of a Worker's counters.
type Stats struct {
	ID            int    `json:"id"`
	QueueDepth    int    `json:"queue_depth"`
	Threshold     int    `json:"threshold"`
	Executed      uint64 `json:"executed"`
	Failed        uint64 `json:"failed"`
	NoSpaceFired  uint64 `json:"no_space_fired"`
	HasSpaceFired uint64 `json:"has_space_fired"`
	Running       bool   `json:"running"`
}
