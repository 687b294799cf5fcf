package watch

import (
	"strings"
	"time"
)

const (
	VerboseHeader = "--- Status Update ---"
	SlotHeader    = "--- 🎉 Slot Available! ---"
)

// CycleReport is the result of one poll cycle, in registry order.
type CycleReport struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Results      []CheckResult
	AnyAvailable bool
}

func NewCycleReport(id string, startedAt time.Time, results []CheckResult) CycleReport {
	r := CycleReport{
		ID:        id,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Results:   results,
	}
	for _, res := range results {
		if res.State == StateAvailable {
			r.AnyAvailable = true
			break
		}
	}
	return r
}

// Available returns the AVAILABLE results in order.
func (r CycleReport) Available() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.State == StateAvailable {
			out = append(out, res)
		}
	}
	return out
}

// Counts returns the number of results per state.
func (r CycleReport) Counts() map[State]int {
	m := make(map[State]int, 3)
	for _, res := range r.Results {
		m[res.State]++
	}
	return m
}

// VerboseMessage is the full status digest sent to VERBOSE subscribers.
func (r CycleReport) VerboseMessage() string {
	return render(VerboseHeader, r.Results)
}

// SlotMessage lists only available targets. Empty when nothing is available.
func (r CycleReport) SlotMessage() string {
	if !r.AnyAvailable {
		return ""
	}
	return render(SlotHeader, r.Available())
}

func render(header string, results []CheckResult) string {
	var b strings.Builder
	b.WriteString(header)
	for _, res := range results {
		b.WriteString("\n")
		b.WriteString(res.Detail)
	}
	return b.String()
}
