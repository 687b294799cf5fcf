package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind tells a fixed interval from a cron expression.
type SpecKind int

const (
	SpecInterval SpecKind = iota
	SpecCron
)

// cronParser accepts 5-field and 6-field (seconds first) expressions plus
// descriptors like "@hourly" and "@every 90s".
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Spec is a validated trigger definition.
type Spec struct {
	Kind  SpecKind
	Every time.Duration
	Cron  string
}

// Every returns a fixed-interval Spec.
func Every(d time.Duration) Spec { return Spec{Kind: SpecInterval, Every: d} }

func (s Spec) IsZero() bool { return s.Kind == SpecInterval && s.Every <= 0 }

// Expr is the robfig/cron form of s.
func (s Spec) Expr() string {
	if s.Kind == SpecCron {
		return s.Cron
	}
	return "@every " + s.Every.String()
}

func (s Spec) String() string {
	if s.Kind == SpecCron {
		return "cron " + s.Cron
	}
	return "every " + s.Every.String()
}

// ParseSchedule accepts:
//   - Go durations: "60s", "2m30s"
//   - HH:MM intervals: "00:05" is five minutes
//   - "every:" or "interval:" followed by either of the above
//   - cron expressions and descriptors: "*/2 * * * *", "@hourly", optionally after "cron:"
//
// Cron expressions are checked with the parser the Service runs them with.
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, errors.New("schedule required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(s[len("cron:"):])
	case strings.HasPrefix(low, "every:"):
		return parseEvery(s[len("every:"):])
	case strings.HasPrefix(low, "interval:"):
		return parseEvery(s[len("interval:"):])
	case strings.HasPrefix(s, "@"), strings.ContainsAny(s, " \t"):
		return parseCron(s)
	}
	return parseEvery(s)
}

func parseCron(expr string) (Spec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Spec{}, errors.New("cron expression required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("cron %q: %w", expr, err)
	}
	return Spec{Kind: SpecCron, Cron: expr}, nil
}

func parseEvery(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	var d time.Duration
	if hh, mm, ok := strings.Cut(v, ":"); ok {
		h, errH := strconv.Atoi(hh)
		m, errM := strconv.Atoi(mm)
		if errH != nil || errM != nil || len(mm) != 2 || h < 0 || m < 0 || m > 59 {
			return Spec{}, fmt.Errorf("invalid HH:MM interval %q", v)
		}
		d = time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Spec{}, fmt.Errorf("invalid schedule %q (use a duration like 60s, HH:MM, or a cron expression)", v)
		}
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval %q must be > 0", v)
	}
	return Every(d), nil
}
