package watch

import (
	"context"
	"fmt"
	"strings"
)

// State is the classification of one target in one cycle.
type State int

const (
	StateFull State = iota
	StateAvailable
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateFull:
		return "FULL"
	case StateAvailable:
		return "AVAILABLE"
	case StateUnreachable:
		return "UNREACHABLE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CheckResult is the outcome for one target. Detail is the line shown to
// subscribers.
type CheckResult struct {
	Target Target
	State  State
	Detail string
	Err    error
}

// Checker classifies a fetched page by looking for the full marker.
type Checker struct {
	fetcher    Fetcher
	fullMarker string
	slotMarker string
}

func NewChecker(f Fetcher, fullMarker, slotMarker string) *Checker {
	return &Checker{fetcher: f, fullMarker: fullMarker, slotMarker: slotMarker}
}

// Check never fails: fetch errors become StateUnreachable.
func (c *Checker) Check(ctx context.Context, t Target) CheckResult {
	body, err := c.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		return CheckResult{
			Target: t,
			State:  StateUnreachable,
			Detail: fmt.Sprintf("Could not check status for %s. Error: %v", t.Name, err),
			Err:    err,
		}
	}
	if strings.Contains(body, c.fullMarker) {
		return CheckResult{Target: t, State: StateFull, Detail: t.Name + ": Full."}
	}
	return CheckResult{
		Target: t,
		State:  StateAvailable,
		Detail: fmt.Sprintf("%s: %s %s", t.Name, c.slotMarker, t.URL),
	}
}

// CheckAll checks targets sequentially in order. It stops early only when
// ctx is canceled; the partial results are returned with ctx.Err().
func (c *Checker) CheckAll(ctx context.Context, targets []Target) ([]CheckResult, error) {
	out := make([]CheckResult, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, c.Check(ctx, t))
	}
	return out, nil
}
