package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotbot/internal/dispatch"
	"slotbot/internal/storage"
	"slotbot/internal/subscribers"
	kit "slotbot/internal/transport"
	"slotbot/internal/watch"
	logx "slotbot/pkg/logx"
)

const (
	ReplyGroupOnly     = "This command only works in my DMs! Please message me directly."
	ReplyAlready       = "You are already subscribed!"
	ReplyUnsubscribed  = "You have been unsubscribed. You will no longer receive updates."
	ReplyNotSubscribed = "You are not currently subscribed."
	ReplyVerboseOff    = "Test mode disabled. You will now only receive notifications when a slot is available."
	ReplyVerboseOn     = "Test mode enabled. You will now receive a status update every cycle."
	ReplyToggleFailed  = "Could not change your notification mode right now. Please try again later."

	recentChanges = 5
)

// Request is one parsed inbound command.
type Request struct {
	Kind     Kind
	UserID   int64
	Username string
	ChatID   int64
	Private  bool
	Owner    bool
}

// StatusSource exposes engine state for the status command.
// *monitor.Engine satisfies it.
type StatusSource interface {
	LastReport() (watch.CycleReport, dispatch.Summary, bool)
	Stats() (completed, skipped uint64)
	Trigger() string
	NextCycle() (time.Time, bool)
}

// History lists recent subscription changes, newest first. storage.Store
// satisfies it.
type History interface {
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

// Roster is the subscription state the handler mutates.
// *subscribers.Store satisfies it.
type Roster interface {
	Subscribe(id int64) bool
	Unsubscribe(id int64) bool
	ToggleVerbose(id int64) (subscribers.Tier, error)
	Counts() (normal, verbose int)
}

// Auditor records subscription changes. storage.Store satisfies it.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Options struct {
	Prefix  string
	Log     logx.Logger
	Audit   Auditor
	History History
	Status  StatusSource
}

// Handler is the only writer of subscriptions and tiers.
type Handler struct {
	store   Roster
	prefix  string
	log     logx.Logger
	audit   Auditor
	history History
	status  StatusSource
}

func NewHandler(store Roster, opt Options) *Handler {
	h := &Handler{
		store:   store,
		prefix:  opt.Prefix,
		log:     opt.Log,
		audit:   opt.Audit,
		history: opt.History,
		status:  opt.Status,
	}
	if h.prefix == "" {
		h.prefix = "/"
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	h.log = h.log.With(logx.String("comp", "commands"))
	return h
}

func (h *Handler) Prefix() string { return h.prefix }

// Parse classifies text with the handler's prefix.
func (h *Handler) Parse(text string) Kind { return Parse(text, h.prefix) }

// Handle applies req and returns the reply. An empty reply means stay silent.
func (h *Handler) Handle(ctx context.Context, req Request) string {
	if !req.Private {
		switch req.Kind {
		case KindNone, KindUnrecognized:
			return ""
		default:
			return ReplyGroupOnly
		}
	}

	switch req.Kind {
	case KindSubscribe:
		if !h.store.Subscribe(req.UserID) {
			return ReplyAlready
		}
		h.log.Info("user subscribed", logx.Int64("user_id", req.UserID), logx.String("username", req.Username))
		h.record(ctx, req, storage.ActionSubscribe, "")
		return h.welcomeText()

	case KindUnsubscribe:
		if !h.store.Unsubscribe(req.UserID) {
			return ReplyNotSubscribed
		}
		h.log.Info("user unsubscribed", logx.Int64("user_id", req.UserID), logx.String("username", req.Username))
		h.record(ctx, req, storage.ActionUnsubscribe, "")
		return ReplyUnsubscribed

	case KindToggleVerbose:
		tier, err := h.store.ToggleVerbose(req.UserID)
		if errors.Is(err, subscribers.ErrNotSubscribed) {
			return h.subscribeFirstText()
		}
		if err != nil {
			h.log.Warn("tier toggle failed", logx.Int64("user_id", req.UserID), logx.Err(err))
			return ReplyToggleFailed
		}
		h.log.Info("user tier changed", logx.Int64("user_id", req.UserID), logx.String("tier", tier.String()))
		h.record(ctx, req, storage.ActionToggleVerbose, tier.String())
		if tier == subscribers.TierVerbose {
			return ReplyVerboseOn
		}
		return ReplyVerboseOff

	case KindHelp:
		return h.HelpText()

	case KindStatus:
		if req.Owner && h.status != nil {
			return h.statusText(ctx)
		}
		return h.unrecognizedText()

	default:
		return h.unrecognizedText()
	}
}

func (h *Handler) record(ctx context.Context, req Request, action, target string) {
	if h.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := h.audit.AppendAudit(actx, storage.AuditEntry{
		ActorID:       req.UserID,
		ActorUsername: req.Username,
		ChatID:        req.ChatID,
		Action:        action,
		Target:        target,
		OK:            true,
	})
	if err != nil {
		h.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

func (h *Handler) cmd(word string) string { return h.prefix + word }

func (h *Handler) welcomeText() string {
	return "You have successfully subscribed! By default, I will only message you when a slot opens.\n\n" +
		"To get a status message every cycle (even if full), type " + h.cmd("test_mode") + ".\n" +
		"To unsubscribe, type " + h.cmd("stop") + "."
}

func (h *Handler) subscribeFirstText() string {
	return "You need to subscribe first! Type " + h.cmd("notify") + " to begin."
}

func (h *Handler) unrecognizedText() string {
	return "Sorry, I don't quite understand that. If you need help, type " + h.cmd("help") + ". Thank you!"
}

// HelpText lists the public commands.
func (h *Handler) HelpText() string {
	var b strings.Builder
	b.WriteString("Hello! I am the TestFlight Notifier Bot. Here are my commands:\n")
	for _, c := range Menu() {
		fmt.Fprintf(&b, "\n%s\n%s\n", h.cmd(c.Command), c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) statusText(ctx context.Context) string {
	normal, verbose := h.store.Counts()
	completed, skipped := h.status.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "Subscribers: %d normal, %d verbose\n", normal, verbose)
	fmt.Fprintf(&b, "Cycles: %d completed, %d skipped (%s)\n", completed, skipped, h.status.Trigger())
	if next, ok := h.status.NextCycle(); ok {
		wait := time.Until(next).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		fmt.Fprintf(&b, "Next cycle in %s\n", wait)
	}
	h.writeRecent(ctx, &b)

	report, sum, ok := h.status.LastReport()
	if !ok {
		b.WriteString("No cycle has completed yet.")
		return b.String()
	}
	fmt.Fprintf(&b, "Last cycle: %s ago, took %s\n", time.Since(report.StartedAt).Round(time.Second), report.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Delivery: %d sent, %d removed, %d failed\n", sum.Sent, sum.Removed, sum.Failed)
	b.WriteString(report.VerboseMessage())
	return b.String()
}

func (h *Handler) writeRecent(ctx context.Context, b *strings.Builder) {
	if h.history == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	entries, err := h.history.RecentAudit(qctx, recentChanges)
	if err != nil {
		h.log.Warn("audit query failed", logx.Err(err))
		return
	}
	if len(entries) == 0 {
		return
	}
	b.WriteString("Recent changes:\n")
	for _, e := range entries {
		who := e.ActorUsername
		if who == "" {
			who = fmt.Sprintf("%d", e.ChatID)
		}
		line := fmt.Sprintf("  %s %s %s", e.At.UTC().Format("01-02 15:04"), e.Action, who)
		if e.Target != "" {
			line += " (" + e.Target + ")"
		}
		b.WriteString(line + "\n")
	}
}

// Menu returns the public command menu.
func Menu() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "notify", Description: "Subscribe to notifications. By default I only message you when a slot opens."},
		{Command: "stop", Description: "Unsubscribe from all notifications."},
		{Command: "test_mode", Description: "Toggle test mode: get a status update every cycle, full or not."},
		{Command: "help", Description: "Show this help message."},
	}
}
