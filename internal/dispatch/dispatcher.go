// Package dispatch fans a cycle report out to subscribers by tier.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"slotbot/internal/eventbus"
	"slotbot/internal/storage"
	"slotbot/internal/subscribers"
	kit "slotbot/internal/transport"
	"slotbot/internal/watch"
	logx "slotbot/pkg/logx"
)

const (
	DefaultWorkers     = 4
	DefaultSendTimeout = 10 * time.Second
)

// Sender delivers a text message to one chat.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Auditor records automatic removals. storage.Store satisfies it.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Options struct {
	Workers     int
	SendTimeout time.Duration
	Log         logx.Logger
	Bus         eventbus.Bus
	Audit       Auditor
}

// Summary counts the outcome of one Dispatch call.
type Summary struct {
	Sent    int
	Removed int
	Failed  int
	// Skipped are NORMAL subscribers with nothing to receive this cycle.
	Skipped int
}

// SendEvent is the payload of dispatch.sent / dispatch.failed events.
type SendEvent struct {
	CycleID string
	UserID  int64
	Tier    subscribers.Tier
	Err     error
}

// Dispatcher delivers reports. It only ever removes subscribers; tiers are
// owned by the command handler.
type Dispatcher struct {
	store  *subscribers.Store
	sender Sender

	workers     int
	sendTimeout time.Duration
	log         logx.Logger
	bus         eventbus.Bus
	audit       Auditor
}

func New(store *subscribers.Store, sender Sender, opt Options) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		sender:      sender,
		workers:     opt.Workers,
		sendTimeout: opt.SendTimeout,
		log:         opt.Log,
		bus:         opt.Bus,
		audit:       opt.Audit,
	}
	if d.workers <= 0 {
		d.workers = DefaultWorkers
	}
	if d.sendTimeout <= 0 {
		d.sendTimeout = DefaultSendTimeout
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	d.log = d.log.With(logx.String("comp", "dispatch"))
	return d
}

type job struct {
	sub  subscribers.Subscriber
	text string
}

// Dispatch sends report to a snapshot of the store. Each send is
// independent: one failure never prevents the others.
func (d *Dispatcher) Dispatch(ctx context.Context, report watch.CycleReport) Summary {
	snapshot := d.store.Snapshot()
	verbose := report.VerboseMessage()
	slot := report.SlotMessage()

	var sum Summary
	jobs := make([]job, 0, len(snapshot))
	for _, sub := range snapshot {
		switch {
		case sub.Tier == subscribers.TierVerbose:
			jobs = append(jobs, job{sub: sub, text: verbose})
		case report.AnyAvailable:
			jobs = append(jobs, job{sub: sub, text: slot})
		default:
			sum.Skipped++
		}
	}
	if len(jobs) == 0 {
		return sum
	}

	var sent, removed, failed atomic.Int64
	queue := make(chan job)
	workers := min(d.workers, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				switch d.deliver(ctx, report.ID, j) {
				case outcomeSent:
					sent.Add(1)
				case outcomeRemoved:
					removed.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case queue <- j:
		}
	}
	close(queue)
	wg.Wait()

	sum.Sent = int(sent.Load())
	sum.Removed = int(removed.Load())
	sum.Failed = int(failed.Load())
	// jobs never handed to a worker because ctx ended
	sum.Failed += len(jobs) - sum.Sent - sum.Removed - sum.Failed

	fields := []logx.Field{
		logx.String("cycle", report.ID),
		logx.Int("sent", sum.Sent),
		logx.Int("removed", sum.Removed),
		logx.Int("failed", sum.Failed),
		logx.Int("skipped", sum.Skipped),
	}
	if sum.Failed > 0 {
		d.log.Warn("dispatch finished with failures", fields...)
	} else {
		d.log.Info("dispatch finished", fields...)
	}
	return sum
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRemoved
	outcomeFailed
)

func (d *Dispatcher) deliver(ctx context.Context, cycleID string, j job) outcome {
	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	_, err := d.sender.SendText(sctx, kit.DirectTarget(j.sub.ID), j.text, nil)
	cancel()

	ev := SendEvent{CycleID: cycleID, UserID: j.sub.ID, Tier: j.sub.Tier, Err: err}
	if err == nil {
		d.publish(eventbus.DispatchSent, ev)
		return outcomeSent
	}

	if kit.IsRecipientUnreachable(err) {
		removed := d.store.Remove(j.sub.ID)
		d.log.Warn("subscriber unreachable; removed",
			logx.Int64("user_id", j.sub.ID),
			logx.String("tier", j.sub.Tier.String()),
			logx.Bool("was_present", removed),
			logx.Err(err),
		)
		d.recordRemoval(ctx, j.sub, err)
		d.publish(eventbus.SubscriberRemoved, ev)
		return outcomeRemoved
	}

	fields := []logx.Field{
		logx.String("cycle", cycleID),
		logx.Int64("user_id", j.sub.ID),
		logx.Err(err),
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fields = append(fields, logx.Duration("timeout", d.sendTimeout))
	}
	d.log.Warn("send failed", fields...)
	d.publish(eventbus.DispatchFailed, ev)
	return outcomeFailed
}

func (d *Dispatcher) recordRemoval(ctx context.Context, sub subscribers.Subscriber, cause error) {
	if d.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := d.audit.AppendAudit(actx, storage.AuditEntry{
		ChatID: sub.ID,
		Action: storage.ActionAutoRemove,
		Target: sub.Tier.String(),
		OK:     true,
		Error:  cause.Error(),
	})
	if err != nil {
		d.log.Warn("audit append failed", logx.Int64("user_id", sub.ID), logx.Err(err))
	}
}

func (d *Dispatcher) publish(typ string, ev SendEvent) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
