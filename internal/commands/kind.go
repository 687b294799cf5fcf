// Package commands turns chat input into subscription actions and replies.
package commands

import (
	"strings"
)

// Kind is the closed set of user commands.
type Kind int

const (
	// KindNone is plain text that does not start with the command prefix.
	KindNone Kind = iota
	KindSubscribe
	KindUnsubscribe
	KindToggleVerbose
	KindHelp
	KindStatus
	KindUnrecognized
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindToggleVerbose:
		return "toggle_verbose"
	case KindHelp:
		return "help"
	case KindStatus:
		return "status"
	default:
		return "unrecognized"
	}
}

var words = map[string]Kind{
	"notify":      KindSubscribe,
	"subscribe":   KindSubscribe,
	"stop":        KindUnsubscribe,
	"unsubscribe": KindUnsubscribe,
	"test-mode":   KindToggleVerbose,
	"test_mode":   KindToggleVerbose,
	"testmode":    KindToggleVerbose,
	"verbose":     KindToggleVerbose,
	"help":        KindHelp,
	"start":       KindHelp,
	"status":      KindStatus,
}

// Parse classifies text. Only the first token matters; a trailing
// "@botname" on it is ignored. Matching is case-insensitive.
func Parse(text, prefix string) Kind {
	if prefix == "" {
		prefix = "/"
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, prefix) {
		return KindNone
	}
	word := strings.TrimPrefix(text, prefix)
	if i := strings.IndexAny(word, " \t\n"); i >= 0 {
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if k, ok := words[strings.ToLower(word)]; ok {
		return k
	}
	return KindUnrecognized
}
