package watch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry(Target{Name: "A", URL: "https://x/a"}, Target{Name: "A", URL: "https://x/b"})
	if !errors.Is(err, ErrDuplicateTarget) {
		t.Fatalf("err = %v, want ErrDuplicateTarget", err)
	}
	r, err := NewRegistry(Target{Name: "A", URL: "https://x/a"}, Target{Name: "B", URL: "https://x/b"})
	if err != nil {
		t.Fatal(err)
	}
	got := r.Targets()
	got[0].Name = "mutated"
	if r.Targets()[0].Name != "A" {
		t.Fatal("Targets must return a copy")
	}
}

func TestCheckClassification(t *testing.T) {
	t.Parallel()
	target := Target{Name: "Group A", URL: "https://testflight.apple.com/join/a"}
	tests := []struct {
		name   string
		body   string
		err    error
		state  State
		detail string
	}{
		{
			name:   "full",
			body:   "<p>This beta is full.</p>",
			state:  StateFull,
			detail: "Group A: Full.",
		},
		{
			name:   "available",
			body:   "<p>Join the beta</p>",
			state:  StateAvailable,
			detail: "Group A: 🎉 THERE IS A SLOT! https://testflight.apple.com/join/a",
		},
		{
			name:   "unreachable",
			err:    errors.New("dial tcp: timeout"),
			state:  StateUnreachable,
			detail: "Could not check status for Group A. Error: dial tcp: timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := FetcherFunc(func(ctx context.Context, url string) (string, error) { return tt.body, tt.err })
			res := NewChecker(f, "This beta is full.", "🎉 THERE IS A SLOT!").Check(context.Background(), target)
			if res.State != tt.state || res.Detail != tt.detail {
				t.Fatalf("got %s %q, want %s %q", res.State, res.Detail, tt.state, tt.detail)
			}
			if (res.Err != nil) != (tt.err != nil) {
				t.Fatalf("Err = %v", res.Err)
			}
		})
	}
}

func TestCheckAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()
	f := FetcherFunc(func(ctx context.Context, url string) (string, error) {
		switch {
		case strings.HasSuffix(url, "/a"):
			return "", errors.New("boom")
		case strings.HasSuffix(url, "/b"):
			return "This beta is full.", nil
		default:
			return "open", nil
		}
	})
	targets := []Target{{Name: "A", URL: "https://x/a"}, {Name: "B", URL: "https://x/b"}, {Name: "C", URL: "https://x/c"}}
	res, err := NewChecker(f, "This beta is full.", "slot").CheckAll(context.Background(), targets)
	if err != nil {
		t.Fatal(err)
	}
	want := []State{StateUnreachable, StateFull, StateAvailable}
	for i, r := range res {
		if r.Target.Name != targets[i].Name || r.State != want[i] {
			t.Fatalf("result %d = %s/%s", i, r.Target.Name, r.State)
		}
	}
}

func TestCheckAllStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	f := FetcherFunc(func(context.Context, string) (string, error) {
		calls++
		cancel()
		return "x", nil
	})
	res, err := NewChecker(f, "full", "slot").CheckAll(ctx, []Target{{Name: "A", URL: "u"}, {Name: "B", URL: "u"}})
	if !errors.Is(err, context.Canceled) || len(res) != 1 || calls != 1 {
		t.Fatalf("res=%d calls=%d err=%v", len(res), calls, err)
	}
}

func TestReportMessages(t *testing.T) {
	t.Parallel()
	results := []CheckResult{
		{Target: Target{Name: "A"}, State: StateFull, Detail: "A: Full."},
		{Target: Target{Name: "B"}, State: StateAvailable, Detail: "B: slot u"},
		{Target: Target{Name: "C"}, State: StateUnreachable, Detail: "Could not check status for C. Error: x"},
	}
	r := NewCycleReport("id", time.Now(), results)
	if !r.AnyAvailable {
		t.Fatal("AnyAvailable should be true")
	}
	wantVerbose := VerboseHeader + "\nA: Full.\nB: slot u\nCould not check status for C. Error: x"
	if got := r.VerboseMessage(); got != wantVerbose {
		t.Fatalf("verbose = %q", got)
	}
	if got := r.SlotMessage(); got != SlotHeader+"\nB: slot u" {
		t.Fatalf("slot = %q", got)
	}

	none := NewCycleReport("id", time.Now(), results[:1])
	if none.AnyAvailable || none.SlotMessage() != "" {
		t.Fatal("no slot message expected when nothing is available")
	}
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "slotbot-test" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("This beta is full."))
		case "/slow":
			time.Sleep(300 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(100*time.Millisecond, "slotbot-test")
	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil || body != "This beta is full." {
		t.Fatalf("body=%q err=%v", body, err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/slow"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestOversizedPageIsUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 5<<20)))
		_, _ = w.Write([]byte("This beta is full."))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "")
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "body exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}

	target := Target{Name: "Big", URL: srv.URL}
	res := NewChecker(f, "This beta is full.", "SLOT").Check(context.Background(), target)
	if res.State != StateUnreachable {
		t.Fatalf("state = %s, want unreachable (%q)", res.State, res.Detail)
	}
	if !strings.Contains(res.Detail, "body exceeds") {
		t.Fatalf("detail = %q", res.Detail)
	}
}
