package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"slotbot/internal/commands"
	"slotbot/internal/subscribers"
	kit "slotbot/internal/transport"
	logx "slotbot/pkg/logx"
)

type capture struct {
	mu    sync.Mutex
	sent  []string
	to    []int64
	menu  []kit.BotCommand
	notif chan struct{}
}

func newCapture() *capture { return &capture{notif: make(chan struct{}, 16)} }

func (c *capture) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to.ChatID)
	c.mu.Unlock()
	c.notif <- struct{}{}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *capture) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menu = cmds
	return nil
}

func (c *capture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.notif:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reply")
	}
}

func TestRouterRepliesAndMutatesStore(t *testing.T) {
	store := subscribers.NewStore()
	out := newCapture()
	r := New(commands.NewHandler(store, commands.Options{}), out, Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	send := func(m kit.Message) { updates <- kit.Update{Kind: kit.UpdateMessage, Message: &m} }

	send(kit.Message{ChatID: 42, FromID: 42, Text: "/notify", Private: true})
	out.wait(t)
	if _, ok := store.Tier(42); !ok {
		t.Fatal("expected user to be subscribed")
	}

	send(kit.Message{ChatID: -100, FromID: 7, Text: "/notify@slotbot", Private: false})
	out.wait(t)

	// group chatter is ignored entirely
	send(kit.Message{ChatID: -100, FromID: 7, Text: "hello", Private: false})

	send(kit.Message{ChatID: 42, FromID: 42, Text: "what?", Private: true})
	out.wait(t)

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.sent) != 3 {
		t.Fatalf("sent %d replies: %q", len(out.sent), out.sent)
	}
	if out.to[1] != -100 || out.sent[1] != commands.ReplyGroupOnly {
		t.Fatalf("group reply = %d %q", out.to[1], out.sent[1])
	}
	if !strings.HasPrefix(out.sent[2], "Sorry, I don't quite understand that.") {
		t.Fatalf("unrecognized reply = %q", out.sent[2])
	}
	if _, ok := store.Tier(7); ok {
		t.Fatal("group command must not subscribe")
	}
}

func TestOwnerGate(t *testing.T) {
	r := New(commands.NewHandler(subscribers.NewStore(), commands.Options{}), newCapture(), Options{Owners: []int64{1}})
	if !r.isOwner(1) || r.isOwner(2) {
		t.Fatal("owner check mismatch")
	}
	r.SetOwners([]int64{2})
	if r.isOwner(1) || !r.isOwner(2) {
		t.Fatal("SetOwners did not apply")
	}
}

func TestMiddlewareRecoversPanics(t *testing.T) {
	h := Chain(func(context.Context, *Request) error { panic("boom") }, MWPanicRecover(logx.Nop()), MWRequestLog(logx.Nop()))
	err := h(context.Background(), &Request{})
	if err == nil || !strings.Contains(err.Error(), "panic: boom") {
		t.Fatalf("err = %v", err)
	}
}

func TestMiddlewareTimeout(t *testing.T) {
	h := Chain(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(20*time.Millisecond))
	if err := h(context.Background(), &Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildMenu(t *testing.T) {
	menu := BuildMenu([]kit.BotCommand{
		{Command: "test-mode", Description: "toggle\nverbose"},
		{Command: "test_mode", Description: "dup"},
		{Command: "9lives", Description: ""},
		{Command: "!!!", Description: "dropped"},
	})
	if len(menu) != 2 {
		t.Fatalf("menu = %+v", menu)
	}
	if menu[0].Command != "test_mode" || menu[0].Description != "toggle verbose" {
		t.Fatalf("first = %+v", menu[0])
	}
	if menu[1].Command != "cmd_9lives" || menu[1].Description != "cmd_9lives" {
		t.Fatalf("second = %+v", menu[1])
	}

	c := newCapture()
	PublishMenu(context.Background(), c, commands.Menu(), logx.Nop())
	if len(c.menu) != len(commands.Menu()) {
		t.Fatalf("published %d commands", len(c.menu))
	}
}
