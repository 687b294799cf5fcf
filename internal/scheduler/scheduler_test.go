package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "slotbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Spec
		expr    string
		wantErr bool
	}{
		{in: "60s", want: Every(time.Minute), expr: "@every 1m0s"},
		{in: "00:50", want: Every(50 * time.Minute), expr: "@every 50m0s"},
		{in: "every:2h30m", want: Every(150 * time.Minute), expr: "@every 2h30m0s"},
		{in: "interval:01:00", want: Every(time.Hour), expr: "@every 1h0m0s"},
		{in: "*/5 * * * *", want: Spec{Kind: SpecCron, Cron: "*/5 * * * *"}, expr: "*/5 * * * *"},
		{in: "@every 1m", want: Spec{Kind: SpecCron, Cron: "@every 1m"}, expr: "@every 1m"},
		{in: "cron:@hourly", want: Spec{Kind: SpecCron, Cron: "@hourly"}, expr: "@hourly"},
		{in: "", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "00:75", wantErr: true},
		{in: "1:5", wantErr: true},
		{in: "-5s", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "61 * * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSchedule(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || got.Expr() != tt.expr {
				t.Fatalf("got %+v (%s)", got, got.Expr())
			}
		})
	}
}

func TestSpecString(t *testing.T) {
	t.Parallel()
	if got := Every(90 * time.Second).String(); got != "every 1m30s" {
		t.Fatalf("interval = %q", got)
	}
	if got := (Spec{Kind: SpecCron, Cron: "@hourly"}).String(); got != "cron @hourly" {
		t.Fatalf("cron = %q", got)
	}
	if !(Spec{}).IsZero() || Every(time.Second).IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestAddScheduleRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	if err := s.AddSchedule("x", "cron:not a cron", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.AddSchedule("", "1s", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected name error")
	}
}

func TestServiceRunsAndSkipsOverlap(t *testing.T) {
	s := New(logx.Nop())
	var runs atomic.Int32
	release := make(chan struct{})
	err := s.AddSchedule("slow", "@every 1s", 0, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())

	time.Sleep(2500 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1 while the first run blocks", got)
	}
	if _, ok := s.Next("slow"); !ok {
		t.Fatal("Next should report a trigger time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Stop cancels the blocked run.
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(release)
}
