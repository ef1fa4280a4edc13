package export

import (
	"fmt"
)

// Phase names a pipeline stage for progress reporting.
type Phase int

const (
	PhaseCollecting Phase = iota
	PhaseResolving
	PhaseBuilding
	PhasePackaging
	PhaseComplete
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseResolving:
		return "resolving"
	case PhaseBuilding:
		return "building"
	case PhasePackaging:
		return "packaging"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Progress is a single progress event. Percent is monotonically
// non-decreasing over a run and reaches exactly 100 on success.
type Progress struct {
	Phase   Phase
	Percent int
	Message string
	Detail  string
}

// ProgressFunc consumes progress events. May be nil. Must tolerate any number
// of calls, including zero on immediate failure.
type ProgressFunc func(Progress)

// reporter clamps percentages so that consumers never observe regressions
// even when a stage misreports.
type reporter struct {
	fn   ProgressFunc
	last int
}

func (r *reporter) report(phase Phase, percent int, message, detail string) {
	if percent < r.last {
		percent = r.last
	}
	if percent > 100 {
		percent = 100
	}
	r.last = percent
	if r.fn == nil {
		return
	}
	r.fn(Progress{Phase: phase, Percent: percent, Message: message, Detail: detail})
}
