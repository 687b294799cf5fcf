package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Watch defines what is checked and how often. It is frozen at startup;
	// edits require a restart.
	Watch WatchConfig `json:"watch"`

	Dispatch *DispatchConfig `json:"dispatch,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may use operator commands such as /status.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id that receives WARN+ log lines (optional).
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
	// CommandPrefix defaults to "/".
	CommandPrefix string `json:"command_prefix,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// WatchConfig describes the watched pages.
//
// interval takes a Go duration ("60s"), an HH:MM interval ("00:05") or a
// cron expression ("*/2 * * * *", "@hourly"). Other durations are Go
// duration strings. Defaults:
//   - interval: "60s"
//   - fetch_timeout: "15s"
//   - full_marker: "This beta is full."
//   - slot_marker: "🎉 THERE IS A SLOT!"
type WatchConfig struct {
	Interval     string         `json:"interval"`
	FetchTimeout string         `json:"fetch_timeout,omitempty"`
	FullMarker   string         `json:"full_marker,omitempty"`
	SlotMarker   string         `json:"slot_marker,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Targets      []TargetConfig `json:"targets"`
}

type TargetConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DispatchConfig controls subscriber fan-out.
// If omitted: workers=4, send_timeout="10s".
type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// StorageConfig controls the optional audit log.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/slotbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
