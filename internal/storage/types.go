package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path
//   - "sqlite": SQLite database file (pure Go driver)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Audit actions.
const (
	ActionSubscribe     = "subscribe"
	ActionUnsubscribe   = "unsubscribe"
	ActionToggleVerbose = "toggle_verbose"
	ActionAutoRemove    = "auto_remove"
)

// AuditEntry records one subscription change. ActorID is 0 for changes made
// by the bot itself.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	MetaJSON      string    `json:"meta,omitempty"`
}
