package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "slotbot/pkg/logx"
)

type entry struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	id      cron.EntryID
	running atomic.Bool
	skipped atomic.Uint64
}

// Service wraps robfig/cron. Definitions added before Start are registered
// when Start runs.
type Service struct {
	log logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]*entry
	runCtx  context.Context
	cancel  context.CancelFunc
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log.With(logx.String("comp", "scheduler")),
		entries: map[string]*entry{},
	}
}

// AddSchedule registers job under name, replacing an existing job with the
// same name. schedule accepts anything ParseSchedule does. The job's ctx is
// canceled on Stop or when timeout (if > 0) elapses.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	spec := ps.Expr()

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok && s.c != nil {
		s.c.Remove(old.id)
	}
	e := &entry{name: name, spec: spec, timeout: timeout, job: job}
	s.entries[name] = e
	if s.c != nil {
		if err := s.registerLocked(e); err != nil {
			delete(s.entries, name)
			return err
		}
	}
	return nil
}

func (s *Service) registerLocked(e *entry) error {
	id, err := s.c.AddJob(e.spec, cron.FuncJob(func() { s.run(e) }))
	if err != nil {
		return err
	}
	e.id = id
	s.log.Debug("schedule registered", logx.String("name", e.name), logx.String("spec", e.spec), logx.Time("next", s.c.Entry(id).Next))
	return nil
}

func (s *Service) run(e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		n := e.skipped.Add(1)
		s.log.Warn("previous run still in progress; tick skipped", logx.String("name", e.name), logx.Uint64("skipped_total", n))
		return
	}
	defer e.running.Store(false)

	s.mu.Lock()
	base := s.runCtx
	s.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}
	ctx := base
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, e.timeout)
		defer cancel()
	}

	start := time.Now()
	err := runRecovered(ctx, e.job)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduled job failed", logx.String("name", e.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("scheduled job finished", logx.String("name", e.name), logx.Duration("took", time.Since(start)))
}

func runRecovered(ctx context.Context, job func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}

// Start begins triggering. Jobs run with contexts derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(cronParser))
	for _, e := range s.entries {
		if err := s.registerLocked(e); err != nil {
			s.log.Error("schedule register failed", logx.String("name", e.name), logx.String("spec", e.spec), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.Int("schedules", len(s.entries)))
}

// Stop stops triggering, cancels running jobs and waits for them until ctx
// is done.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	stopped := c.Stop()
	cancel()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running jobs", logx.Duration("took", time.Since(start)))
		return ctx.Err()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// Next returns the next trigger time of name, if scheduled and started.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || s.c == nil {
		return time.Time{}, false
	}
	next := s.c.Entry(e.id).Next
	return next, !next.IsZero()
}
