package router

import (
	"context"
	"strings"
	"time"

	kit "slotbot/internal/transport"
	logx "slotbot/pkg/logx"
)

// sanitizeCommand converts a command word into a Telegram-safe bot command
// name: [a-z0-9_]{1,32}, starting with a letter.
func sanitizeCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// BuildMenu sanitizes and de-duplicates menu entries, keeping the first
// occurrence and Telegram's limits (100 entries, 256-byte descriptions).
func BuildMenu(cmds []kit.BotCommand) []kit.BotCommand {
	seen := map[string]struct{}{}
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeCommand(c.Command)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) == 100 {
			break
		}
	}
	return out
}

// PublishMenu pushes cmds to the platform when the adapter supports it.
func PublishMenu(ctx context.Context, adapter any, cmds []kit.BotCommand, log logx.Logger) {
	up, ok := adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	menu := BuildMenu(cmds)
	if err := up.UpdateMenuCommands(ctx, menu); err != nil {
		log.Warn("command menu update failed", logx.Err(err))
		return
	}
	log.Debug("command menu updated", logx.Int("commands", len(menu)))
}
