package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slotbot/internal/scheduler"
)

const (
	DefaultInterval     = 60 * time.Second
	DefaultFetchTimeout = 15 * time.Second
	DefaultFullMarker   = "This beta is full."
	DefaultSlotMarker   = "🎉 THERE IS A SLOT!"
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultSendTimeout  = 10 * time.Second
	DefaultWorkers      = 4
	DefaultPollTimeout  = 10 * time.Second
	MinInterval         = time.Second
)

// WatchSettings is the typed, defaulted form of WatchConfig.
type WatchSettings struct {
	Schedule     scheduler.Spec
	FetchTimeout time.Duration
	FullMarker   string
	SlotMarker   string
	UserAgent    string
	Targets      []TargetConfig
}

// DispatchSettings is the typed, defaulted form of DispatchConfig.
type DispatchSettings struct {
	Workers     int
	SendTimeout time.Duration
}

// ParseDurationField parses a Go duration string. Empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

func (c *Config) WatchSettings() (WatchSettings, error) {
	w := c.Watch
	sched := scheduler.Every(DefaultInterval)
	if strings.TrimSpace(w.Interval) != "" {
		ps, err := scheduler.ParseSchedule(w.Interval)
		if err != nil {
			return WatchSettings{}, fmt.Errorf("watch.interval: %w", err)
		}
		sched = ps
	}
	if sched.Kind == scheduler.SpecInterval && sched.Every < MinInterval {
		return WatchSettings{}, fmt.Errorf("watch.interval must be >= %s", MinInterval)
	}
	fetchTimeout, err := ParseDurationOrDefault("watch.fetch_timeout", w.FetchTimeout, DefaultFetchTimeout)
	if err != nil {
		return WatchSettings{}, err
	}

	out := WatchSettings{
		Schedule:     sched,
		FetchTimeout: fetchTimeout,
		FullMarker:   orDefault(w.FullMarker, DefaultFullMarker),
		SlotMarker:   orDefault(w.SlotMarker, DefaultSlotMarker),
		UserAgent:    orDefault(w.UserAgent, DefaultUserAgent),
	}

	if len(w.Targets) == 0 {
		return WatchSettings{}, fmt.Errorf("watch.targets: at least one target is required")
	}
	seen := make(map[string]struct{}, len(w.Targets))
	for i, t := range w.Targets {
		name := strings.TrimSpace(t.Name)
		raw := strings.TrimSpace(t.URL)
		if name == "" {
			return WatchSettings{}, fmt.Errorf("watch.targets[%d].name is required", i)
		}
		if _, dup := seen[name]; dup {
			return WatchSettings{}, fmt.Errorf("watch.targets[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return WatchSettings{}, fmt.Errorf("watch.targets[%d].url: want absolute http(s) url, got %q", i, raw)
		}
		out.Targets = append(out.Targets, TargetConfig{Name: name, URL: raw})
	}
	return out, nil
}

func (c *Config) DispatchSettings() (DispatchSettings, error) {
	out := DispatchSettings{Workers: DefaultWorkers, SendTimeout: DefaultSendTimeout}
	if c.Dispatch == nil {
		return out, nil
	}
	if c.Dispatch.Workers < 0 {
		return DispatchSettings{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if c.Dispatch.Workers > 0 {
		out.Workers = c.Dispatch.Workers
	}
	d, err := ParseDurationOrDefault("dispatch.send_timeout", c.Dispatch.SendTimeout, DefaultSendTimeout)
	if err != nil {
		return DispatchSettings{}, err
	}
	out.SendTimeout = d
	return out, nil
}

// GroupLogChatID parses telegram.group_log. Empty means disabled (0).
func (c *Config) GroupLogChatID() (int64, error) {
	s := strings.TrimSpace(c.Telegram.GroupLog)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", s)
	}
	return id, nil
}

func (c *Config) CommandPrefix() string {
	return orDefault(c.Telegram.CommandPrefix, "/")
}

// Validate checks every section the process depends on.
// The telegram token is only required when requireToken is set, so offline
// subcommands (validate, check) work with placeholder configs.
func Validate(c *Config, requireToken bool) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if requireToken && strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := c.GroupLogChatID(); err != nil {
		return err
	}
	if strings.ContainsAny(strings.TrimSpace(c.Telegram.CommandPrefix), " \t\n") {
		return fmt.Errorf("telegram.command_prefix must not contain whitespace")
	}
	if _, err := c.WatchSettings(); err != nil {
		return err
	}
	if _, err := c.DispatchSettings(); err != nil {
		return err
	}
	if c.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", d)
			}
			if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", c.Storage.Driver)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
