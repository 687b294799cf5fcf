// Package router moves inbound chat updates onto a bounded worker pool and
// runs the command handler behind a middleware chain.
package router

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"slotbot/internal/commands"
	"slotbot/internal/runtime/supervisor"
	kit "slotbot/internal/transport"
	logx "slotbot/pkg/logx"
)

const (
	defaultWorkers  = 4
	defaultQueueCap = 256
	defaultTimeout  = 15 * time.Second
	busyReply       = "I'm a little busy right now, please try again in a moment."
)

// Request is one routed message.
type Request struct {
	ReqID   string
	Message kit.Message
	Kind    commands.Kind
	Owner   bool
	Logger  logx.Logger
}

// Sender is the subset of the adapter the router needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Options struct {
	Workers  int
	QueueCap int
	Timeout  time.Duration
	Owners   []int64
	Log      logx.Logger
}

// Router dispatches updates to the command handler.
type Router struct {
	handler *commands.Handler
	sender  Sender
	log     logx.Logger

	workers int
	timeout time.Duration
	owners  atomic.Pointer[[]int64]

	runMu   sync.Mutex
	running bool
	jobs    chan func()
}

func New(h *commands.Handler, sender Sender, opt Options) *Router {
	r := &Router{
		handler: h,
		sender:  sender,
		log:     opt.Log,
		workers: opt.Workers,
		timeout: opt.Timeout,
	}
	if r.workers <= 0 {
		r.workers = defaultWorkers
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	qc := opt.QueueCap
	if qc <= 0 {
		qc = defaultQueueCap
	}
	r.jobs = make(chan func(), qc)
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("comp", "telegram.router"))
	r.SetOwners(opt.Owners)
	return r
}

// SetOwners replaces the operator list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.owners.Store(&cp)
}

func (r *Router) isOwner(id int64) bool {
	p := r.owners.Load()
	if p == nil {
		return false
	}
	for _, o := range *p {
		if o == id {
			return true
		}
	}
	return false
}

// tryEnqueue never blocks and never panics on a closed queue.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return false
	}
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log), supervisor.WithCancelOnError(false))

	r.runMu.Lock()
	r.running = true
	r.runMu.Unlock()

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("queue_cap", cap(r.jobs)))

	defer func() {
		r.runMu.Lock()
		r.running = false
		close(r.jobs)
		r.runMu.Unlock()

		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				r.route(ctx, *up.Message)
			}
		}
	}
}

func (r *Router) route(ctx context.Context, msg kit.Message) {
	kind := r.handler.Parse(msg.Text)
	if kind == commands.KindNone && !msg.Private {
		return
	}

	rid := uuid.NewString()
	req := &Request{
		ReqID:   rid,
		Message: msg,
		Kind:    kind,
		Owner:   r.isOwner(msg.FromID),
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", kind.String()),
		),
	}

	final := Chain(r.handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(r.timeout))
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		r.log.Warn("command queue full", logx.Int64("chat_id", msg.ChatID))
		_, _ = r.sender.SendText(ctx, replyTarget(msg), busyReply, nil)
	}
}

func (r *Router) handle(ctx context.Context, req *Request) error {
	msg := req.Message
	reply := r.handler.Handle(ctx, commands.Request{
		Kind:     req.Kind,
		UserID:   msg.FromID,
		Username: msg.FromUsername,
		ChatID:   msg.ChatID,
		Private:  msg.Private,
		Owner:    req.Owner,
	})
	if reply == "" {
		return nil
	}
	_, err := r.sender.SendText(ctx, replyTarget(msg), reply, &kit.SendOptions{DisablePreview: true})
	return err
}

func replyTarget(msg kit.Message) kit.ChatTarget {
	return kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
}
