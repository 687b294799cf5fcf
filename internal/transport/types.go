package transport

import (
	"context"
	"errors"
)

// ErrRecipientUnreachable marks a delivery failure that will not heal on its
// own: the user blocked the bot, deleted their account, or never opened a
// private chat with it. Adapters wrap platform errors with it.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// IsRecipientUnreachable reports whether err is a permanent delivery failure.
func IsRecipientUnreachable(err error) bool {
	return errors.Is(err, ErrRecipientUnreachable)
}

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	// Private is true for one-to-one chats between the bot and a user.
	Private bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// DirectTarget addresses a user's private chat. On Telegram the private chat
// id equals the user id.
func DirectTarget(userID int64) ChatTarget {
	return ChatTarget{ChatID: userID}
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand is a single entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command
// menu (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
