// Package monitor runs poll cycles: check every target, build a report and
// hand it to the dispatcher.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"slotbot/internal/dispatch"
	"slotbot/internal/eventbus"
	"slotbot/internal/scheduler"
	"slotbot/internal/watch"
	logx "slotbot/pkg/logx"
)

// ErrCycleRunning is returned by RunCycle when another cycle holds the lock.
var ErrCycleRunning = errors.New("cycle already running")

// Population reports how many subscribers exist. *subscribers.Store
// satisfies it.
type Population interface {
	Len() int
}

// Dispatcher delivers a report. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, report watch.CycleReport) dispatch.Summary
}

// Scheduler triggers the cycle. *scheduler.Service satisfies it.
type Scheduler interface {
	AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error
	Next(name string) (time.Time, bool)
}

type Options struct {
	// Schedule defaults to every minute.
	Schedule scheduler.Spec
	Log      logx.Logger
	Bus      eventbus.Bus
}

// CycleOutcome is the payload of cycle.completed events.
type CycleOutcome struct {
	Report  watch.CycleReport
	Summary dispatch.Summary
}

const JobName = "watch.cycle"

// Engine owns the poll cycle. Cycles never overlap.
type Engine struct {
	registry *watch.Registry
	checker  *watch.Checker
	subs     Population
	disp     Dispatcher

	spec scheduler.Spec
	log  logx.Logger
	bus  eventbus.Bus

	cycleMu sync.Mutex

	mu      sync.RWMutex
	sched   Scheduler
	last    *watch.CycleReport
	lastSum dispatch.Summary
	cycles  uint64
	skipped uint64
}

func New(reg *watch.Registry, checker *watch.Checker, subs Population, disp Dispatcher, opt Options) *Engine {
	e := &Engine{
		registry: reg,
		checker:  checker,
		subs:     subs,
		disp:     disp,
		spec:     opt.Schedule,
		log:      opt.Log,
		bus:      opt.Bus,
	}
	if e.spec.IsZero() {
		e.spec = scheduler.Every(time.Minute)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("comp", "monitor"))
	return e
}

// Schedule registers the cycle on s with the configured trigger.
func (e *Engine) Schedule(s Scheduler) error {
	err := s.AddSchedule(JobName, e.spec.Expr(), 0, func(ctx context.Context) error {
		_, err := e.RunCycle(ctx)
		if errors.Is(err, ErrCycleRunning) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.sched = s
	e.mu.Unlock()
	return nil
}

// RunCycle executes one full cycle. It returns (nil, nil) when the cycle was
// skipped because nobody is subscribed.
func (e *Engine) RunCycle(ctx context.Context) (*watch.CycleReport, error) {
	if !e.cycleMu.TryLock() {
		e.log.Warn("cycle skipped: previous cycle still running")
		return nil, ErrCycleRunning
	}
	defer e.cycleMu.Unlock()

	if e.subs != nil && e.subs.Len() == 0 {
		e.mu.Lock()
		e.skipped++
		e.mu.Unlock()
		e.log.Debug("cycle skipped: no subscribers")
		e.publish(eventbus.CycleSkipped, nil)
		return nil, nil
	}

	id := uuid.NewString()
	start := time.Now()
	log := e.log.With(logx.String("cycle", id))
	log.Debug("cycle started", logx.Int("targets", e.registry.Len()))

	results, err := e.checker.CheckAll(ctx, e.registry.Targets())
	if err != nil {
		log.Info("cycle interrupted", logx.Int("checked", len(results)), logx.Err(err))
		return nil, err
	}
	report := watch.NewCycleReport(id, start, results)
	counts := report.Counts()
	log.Info("cycle checked",
		logx.Int("full", counts[watch.StateFull]),
		logx.Int("available", counts[watch.StateAvailable]),
		logx.Int("unreachable", counts[watch.StateUnreachable]),
		logx.Duration("took", report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sum dispatch.Summary
	if e.disp != nil {
		sum = e.disp.Dispatch(ctx, report)
	}

	e.mu.Lock()
	e.last = &report
	e.lastSum = sum
	e.cycles++
	e.mu.Unlock()

	e.publish(eventbus.CycleCompleted, CycleOutcome{Report: report, Summary: sum})
	return &report, nil
}

// LastReport returns the most recent completed report.
func (e *Engine) LastReport() (watch.CycleReport, dispatch.Summary, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return watch.CycleReport{}, dispatch.Summary{}, false
	}
	return *e.last, e.lastSum, true
}

// Stats returns completed and skipped cycle counts.
func (e *Engine) Stats() (completed, skipped uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycles, e.skipped
}

// Trigger describes when cycles run, e.g. "every 1m0s".
func (e *Engine) Trigger() string { return e.spec.String() }

// NextCycle reports the next scheduled cycle, if the engine is scheduled
// and its scheduler is running.
func (e *Engine) NextCycle() (time.Time, bool) {
	e.mu.RLock()
	s := e.sched
	e.mu.RUnlock()
	if s == nil {
		return time.Time{}, false
	}
	return s.Next(JobName)
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
