package app

import (
	"strings"
	"time"

	"slotbot/internal/config"
	"slotbot/internal/storage"
	logx "slotbot/pkg/logx"
)

// mapStorageConfig translates the storage section. enabled is false when the
// section is missing or the driver is "none". Validation already happened in
// config.Validate.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}
	if driver == "sqlite" || driver == "sqlite3" {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
	}
	return out, true, nil
}

// mapLogConfig resolves the ops chat target from telegram.group_log.
func mapLogConfig(cfg *config.Config) logx.Config {
	chatID, _ := cfg.GroupLogChatID()
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		OpsChat: logx.OpsChatConfig{
			Enabled:    lc.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}
