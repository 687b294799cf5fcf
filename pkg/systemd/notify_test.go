package systemd

import (
	"context"
	"testing"
	"time"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	if err != nil || sent {
		t.Fatalf("Ready() = %v, %v; want false, nil", sent, err)
	}
	if sent, _ := Stopping(); sent {
		t.Fatal("Stopping() should not report a send")
	}
}

func TestWatchdogIntervalDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")
	if got := WatchdogInterval(); got != 0 {
		t.Fatalf("WatchdogInterval() = %s, want 0", got)
	}
}

func TestWatchdogReturnsOnCancel(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watchdog(ctx, time.Millisecond, func() bool { return true })
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not return after cancel")
	}
}
