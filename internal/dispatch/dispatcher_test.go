package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"slotbot/internal/eventbus"
	"slotbot/internal/storage"
	"slotbot/internal/subscribers"
	kit "slotbot/internal/transport"
	"slotbot/internal/watch"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	errs map[int64]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[int64][]string{}, errs: map[int64]error{}}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.sent[to.ChatID] = append(f.sent[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) messages(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[id]...)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (a *fakeAudit) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func report(states ...watch.State) watch.CycleReport {
	results := make([]watch.CheckResult, 0, len(states))
	for i, st := range states {
		name := fmt.Sprintf("T%d", i)
		var detail string
		switch st {
		case watch.StateFull:
			detail = name + ": Full."
		case watch.StateAvailable:
			detail = name + ": slot https://x/" + name
		default:
			detail = "Could not check status for " + name + ". Error: timeout"
		}
		results = append(results, watch.CheckResult{Target: watch.Target{Name: name}, State: st, Detail: detail})
	}
	return watch.NewCycleReport("cycle-1", time.Now(), results)
}

func TestAllFullOnlyVerboseHears(t *testing.T) {
	store := subscribers.NewStore()
	store.Subscribe(1)
	store.Subscribe(2)
	_, _ = store.ToggleVerbose(2)
	sender := newFakeSender()

	sum := New(store, sender, Options{}).Dispatch(context.Background(), report(watch.StateFull, watch.StateFull))

	if sum.Sent != 1 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sender.messages(1)) != 0 {
		t.Fatal("NORMAL subscriber must not hear about a full cycle")
	}
	want := watch.VerboseHeader + "\nT0: Full.\nT1: Full."
	if got := sender.messages(2); len(got) != 1 || got[0] != want {
		t.Fatalf("verbose got %q", got)
	}
}

func TestSlotReachesBothTiers(t *testing.T) {
	store := subscribers.NewStore()
	store.Subscribe(1)
	store.Subscribe(2)
	_, _ = store.ToggleVerbose(2)
	sender := newFakeSender()

	rep := report(watch.StateFull, watch.StateAvailable, watch.StateUnreachable)
	sum := New(store, sender, Options{Workers: 2}).Dispatch(context.Background(), rep)

	if sum.Sent != 2 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := sender.messages(1); len(got) != 1 || got[0] != watch.SlotHeader+"\nT1: slot https://x/T1" {
		t.Fatalf("normal got %q", got)
	}
	if got := sender.messages(2); len(got) != 1 || got[0] != rep.VerboseMessage() {
		t.Fatalf("verbose got %q", got)
	}
}

func TestUnreachableSubscriberIsRemoved(t *testing.T) {
	store := subscribers.NewStore()
	store.Subscribe(1)
	store.Subscribe(2)
	store.Subscribe(3)
	_, _ = store.ToggleVerbose(2)

	sender := newFakeSender()
	sender.errs[2] = fmt.Errorf("telegram: %w", kit.ErrRecipientUnreachable)
	sender.errs[3] = errors.New("502 bad gateway")

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	audit := &fakeAudit{}

	sum := New(store, sender, Options{Bus: bus, Audit: audit}).Dispatch(context.Background(), report(watch.StateAvailable))

	if sum.Sent != 1 || sum.Removed != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if _, ok := store.Tier(2); ok {
		t.Fatal("unreachable subscriber should be removed from every tier")
	}
	if _, ok := store.Tier(3); !ok {
		t.Fatal("transient failure must keep the subscriber")
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != storage.ActionAutoRemove || audit.entries[0].ChatID != 2 {
		t.Fatalf("audit = %+v", audit.entries)
	}

	seen := map[string]int{}
	for len(events) > 0 {
		ev := <-events
		seen[ev.Type]++
	}
	if seen[eventbus.SubscriberRemoved] != 1 || seen[eventbus.DispatchFailed] != 1 || seen[eventbus.DispatchSent] != 1 {
		t.Fatalf("events = %v", seen)
	}
}

func TestEmptyStoreSendsNothing(t *testing.T) {
	sender := newFakeSender()
	sum := New(subscribers.NewStore(), sender, Options{}).Dispatch(context.Background(), report(watch.StateAvailable))
	if sum != (Summary{}) {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestCanceledContextCountsUnsentAsFailed(t *testing.T) {
	store := subscribers.NewStore()
	for i := int64(1); i <= 10; i++ {
		store.Subscribe(i)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := New(store, newFakeSender(), Options{Workers: 1}).Dispatch(ctx, report(watch.StateAvailable))
	if sum.Sent+sum.Failed != 10 {
		t.Fatalf("summary = %+v", sum)
	}
}
