package config

import (
	"reflect"
	"strings"

	logx "slotbot/pkg/logx"
)

// ConfigChange summarizes what differs between two snapshots.
type ConfigChange struct {
	// Sections lists changed top-level sections in a stable order.
	Sections []string
	// RestartRequired lists changed sections that are only read at startup.
	RestartRequired []string
	// Fields are safe structured attrs for logging. Tokens never appear.
	Fields []logx.Field
}

func (c ConfigChange) Empty() bool { return len(c.Sections) == 0 }

func (c ConfigChange) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two snapshots. Only the logging section and
// telegram.owner_user_ids apply live; everything else needs a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ConfigChange {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out ConfigChange
	mark := func(section string, restart bool, fields ...logx.Field) {
		out.Sections = append(out.Sections, section)
		if restart {
			out.RestartRequired = append(out.RestartRequired, section)
		}
		out.Fields = append(out.Fields, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if !reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		mark("telegram.owners", false, logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)))
	}
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		strings.TrimSpace(ot.CommandPrefix) != strings.TrimSpace(nt.CommandPrefix) {
		mark("telegram", true,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Watch, newCfg.Watch) {
		mark("watch", true,
			logx.String("watch.interval", newCfg.Watch.Interval),
			logx.Int("watch.targets", len(newCfg.Watch.Targets)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		mark("dispatch", true)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage", true)
	}
	return out
}
