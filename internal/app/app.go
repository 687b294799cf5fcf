package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slotbot/internal/commands"
	"slotbot/internal/config"
	"slotbot/internal/dispatch"
	"slotbot/internal/eventbus"
	"slotbot/internal/monitor"
	"slotbot/internal/runtime/supervisor"
	"slotbot/internal/scheduler"
	"slotbot/internal/storage"
	"slotbot/internal/subscribers"
	kit "slotbot/internal/transport"
	telegram "slotbot/internal/transport/telegram/adapter"
	"slotbot/internal/transport/telegram/router"
	"slotbot/internal/watch"
	logx "slotbot/pkg/logx"
	"slotbot/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter

	subs    *subscribers.Store
	monitor *monitor.Engine
	sched   *scheduler.Service
	router  *router.Router

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := config.Validate(cfg, true); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	ws, err := cfg.WatchSettings()
	if err != nil {
		return nil, err
	}
	reg, err := watch.NewRegistry(targetsOf(ws)...)
	if err != nil {
		return nil, err
	}
	checker := watch.NewChecker(watch.NewHTTPFetcher(ws.FetchTimeout, ws.UserAgent), ws.FullMarker, ws.SlotMarker)

	ds, err := cfg.DispatchSettings()
	if err != nil {
		return nil, err
	}
	subs := subscribers.NewStore()
	disp := dispatch.New(subs, ad, dispatch.Options{
		Workers:     ds.Workers,
		SendTimeout: ds.SendTimeout,
		Log:         log,
		Bus:         bus,
		Audit:       store,
	})

	eng := monitor.New(reg, checker, subs, disp, monitor.Options{
		Schedule: ws.Schedule,
		Log:      log,
		Bus:      bus,
	})

	handler := commands.NewHandler(subs, commands.Options{
		Prefix:  cfg.CommandPrefix(),
		Log:     log,
		Audit:   store,
		History: store,
		Status:  eng,
	})
	rt := router.New(handler, ad, router.Options{
		Owners: cfg.Telegram.OwnerUserIDs,
		Log:    log,
	})

	log.Info("watching targets", logx.Int("targets", reg.Len()), logx.String("schedule", ws.Schedule.String()))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		subs:    subs,
		monitor: eng,
		sched:   scheduler.New(log),
		router:  rt,
		updates: make(chan kit.Update, 256),
	}, nil
}

func targetsOf(ws config.WatchSettings) []watch.Target {
	out := make([]watch.Target, 0, len(ws.Targets))
	for _, t := range ws.Targets {
		out = append(out, watch.Target{Name: t.Name, URL: t.URL})
	}
	return out
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Reloads are validated before they are committed and published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, true)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		router.PublishMenu(c, a.adapter, commands.Menu(), a.log)
	})

	if err := a.monitor.Schedule(a.sched); err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}
	a.sched.Start(a.sup.Context())

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.logEvent(e)
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if every := systemd.WatchdogInterval(); every > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, every, func() bool { return a.sup.Err() == nil })
		})
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		_, _ = systemd.Status(fmt.Sprintf("watching, %s", a.monitor.Trigger()))
	}

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies the live sections and reports the rest.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	change := config.SummarizeConfigChange(oldCfg, newCfg)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Debug("config change summary", fields...)

	if change.Has("logging") || change.Has("telegram") {
		a.logs.Apply(mapLogConfig(newCfg))
	}
	if change.Has("telegram.owners") {
		a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
	}
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(change.Sections, ",")))
}

func (a *App) logEvent(e eventbus.Event) {
	switch e.Type {
	case eventbus.SubscriberRemoved:
		if ev, ok := e.Data.(dispatch.SendEvent); ok {
			a.log.Info("subscriber removed", logx.Int64("user_id", ev.UserID), logx.Err(ev.Err))
			return
		}
	case eventbus.CycleCompleted:
		if out, ok := e.Data.(monitor.CycleOutcome); ok {
			a.log.Debug("event", logx.String("type", e.Type),
				logx.String("cycle_id", out.Report.ID),
				logx.Bool("available", out.Report.AnyAvailable),
				logx.Int("sent", out.Summary.Sent))
			return
		}
	}
	// Debug level keeps per-send events out of normal logs.
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; anything still running here is a leak.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	// Scheduler first so no new cycle starts while senders go away.
	step("scheduler", 3*time.Second, a.sched.Stop)
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	normal, verbose := a.subs.Counts()
	a.log.Info("stopped", logx.Int("subscribers_normal", normal), logx.Int("subscribers_verbose", verbose))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
