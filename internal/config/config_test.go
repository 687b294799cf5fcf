package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slotbot/internal/scheduler"
)

const sampleJSON = `{
  "telegram": {"token": "t", "owner_user_ids": [1], "group_log": "", "poll_timeout": "10s"},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""},
              "telegram": {"enabled": false, "thread_id": 0, "min_level": "", "rate_per_sec": 0}},
  "watch": {"interval": "60s", "targets": [{"name": "Alpha", "url": "https://testflight.apple.com/join/aaa"}]}
}`

const sampleYAML = `
telegram:
  token: t
  owner_user_ids: [1, 2]
  group_log: ""
  poll_timeout: 10s
logging:
  level: debug
  console: true
  file: {enabled: false, path: ""}
  telegram: {enabled: false, thread_id: 0, min_level: "", rate_per_sec: 0}
watch:
  interval: 30s
  full_marker: "No slots."
  targets:
    - name: Alpha
      url: https://testflight.apple.com/join/aaa
    - name: Beta
      url: https://testflight.apple.com/join/bbb
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.json", sampleJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the parsed config")
	}
	ws, err := cfg.WatchSettings()
	if err != nil {
		t.Fatalf("WatchSettings: %v", err)
	}
	if ws.Schedule != scheduler.Every(time.Minute) || ws.FetchTimeout != DefaultFetchTimeout {
		t.Fatalf("durations = %v/%v", ws.Schedule, ws.FetchTimeout)
	}
	if ws.FullMarker != DefaultFullMarker || ws.SlotMarker != DefaultSlotMarker {
		t.Fatalf("markers not defaulted: %+v", ws)
	}
}

func TestParseYAML(t *testing.T) {
	cfg, err := NewConfigManager(writeFile(t, "config.yaml", sampleYAML)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	ws, err := cfg.WatchSettings()
	if err != nil {
		t.Fatal(err)
	}
	if ws.Schedule != scheduler.Every(30*time.Second) || ws.FullMarker != "No slots." || len(ws.Targets) != 2 {
		t.Fatalf("unexpected watch settings: %+v", ws)
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"telegram": {"token": "t", "bogus": 1}}`,
		"trailing data": `{"telegram": {"token": "t"}} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode("config.json", []byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Watch: WatchConfig{Targets: []TargetConfig{
				{Name: "Alpha", URL: "https://example.com/a"},
			}},
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		token   bool
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}, token: true},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, token: true, wantErr: "telegram.token"},
		{name: "missing token offline", mutate: func(c *Config) { c.Telegram.Token = "" }},
		{name: "no targets", mutate: func(c *Config) { c.Watch.Targets = nil }, wantErr: "at least one target"},
		{name: "duplicate name", mutate: func(c *Config) {
			c.Watch.Targets = append(c.Watch.Targets, TargetConfig{Name: "Alpha", URL: "https://example.com/b"})
		}, wantErr: "duplicate"},
		{name: "relative url", mutate: func(c *Config) { c.Watch.Targets[0].URL = "/join/x" }, wantErr: "absolute"},
		{name: "ftp url", mutate: func(c *Config) { c.Watch.Targets[0].URL = "ftp://example.com" }, wantErr: "absolute"},
		{name: "interval too small", mutate: func(c *Config) { c.Watch.Interval = "500ms" }, wantErr: "watch.interval"},
		{name: "cron interval", mutate: func(c *Config) { c.Watch.Interval = "*/2 * * * *" }},
		{name: "hhmm interval", mutate: func(c *Config) { c.Watch.Interval = "00:05" }},
		{name: "bad cron interval", mutate: func(c *Config) { c.Watch.Interval = "99 * * * *" }, wantErr: "watch.interval"},
		{name: "bad duration", mutate: func(c *Config) { c.Watch.FetchTimeout = "soon" }, wantErr: "watch.fetch_timeout"},
		{name: "bad group log", mutate: func(c *Config) { c.Telegram.GroupLog = "ops" }, wantErr: "group_log"},
		{name: "bad storage driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, wantErr: "storage.driver"},
		{name: "storage without path", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, wantErr: "storage.path"},
		{name: "negative workers", mutate: func(c *Config) { c.Dispatch = &DispatchConfig{Workers: -1} }, wantErr: "dispatch.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := Validate(c, tt.token)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestWatchSettingsSchedule(t *testing.T) {
	t.Parallel()
	c := &Config{Watch: WatchConfig{
		Interval: "cron:@hourly",
		Targets:  []TargetConfig{{Name: "Alpha", URL: "https://example.com/a"}},
	}}
	ws, err := c.WatchSettings()
	if err != nil {
		t.Fatal(err)
	}
	if ws.Schedule.Kind != scheduler.SpecCron || ws.Schedule.Expr() != "@hourly" {
		t.Fatalf("schedule = %+v", ws.Schedule)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Logging: LoggingConfig{Level: "info"}, Watch: WatchConfig{Interval: "60s"}}
	b := &Config{Logging: LoggingConfig{Level: "debug"}, Watch: WatchConfig{Interval: "30s"}}
	b.Telegram.OwnerUserIDs = []int64{7}

	ch := SummarizeConfigChange(a, b)
	if !ch.Has("logging") || !ch.Has("watch") || !ch.Has("telegram.owners") {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if len(ch.RestartRequired) != 1 || ch.RestartRequired[0] != "watch" {
		t.Fatalf("restart required = %v", ch.RestartRequired)
	}
	if !SummarizeConfigChange(a, a).Empty() {
		t.Fatal("identical configs should produce an empty change")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	path := writeFile(t, "config.json", sampleJSON)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(sampleJSON, `"interval": "60s"`, `"interval": "5s"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Watch.Interval != "5s" {
			t.Fatalf("interval = %q", cfg.Watch.Interval)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
}
