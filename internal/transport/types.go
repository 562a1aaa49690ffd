// Package transport holds the messaging-network neutral types shared by the
// Telegram adapter, the message source and the notifier.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type UpdateKind string

const (
	// UpdateMessage is a message in a private chat or group (commands, replies).
	UpdateMessage UpdateKind = "message"
	// UpdateChannelPost is a post published in a channel the bot is a member of.
	UpdateChannelPost UpdateKind = "channel_post"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	// Chat metadata, set for channel posts.
	ChatTitle    string
	ChatUsername string

	FromID       int64
	FromUsername string
	FromLanguage string
	Text         string
	IsPrivate    bool
	Date         time.Time
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
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

// Chat is a resolved chat (channel, group or user).
type Chat struct {
	ID       int64
	Title    string
	Username string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// ResolveChat looks up a chat by "@username" or numeric id.
	ResolveChat(ctx context.Context, identifier string) (Chat, error)
}

var (
	// ErrChatNotFound means the chat does not exist or the bot cannot see it.
	ErrChatNotFound = errors.New("transport: chat not found")
	// ErrForbidden means the recipient blocked the bot or the bot was removed.
	ErrForbidden = errors.New("transport: forbidden")
)

// RateLimitError is returned when the network asks the caller to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("transport: rate limited, retry after %s", e.RetryAfter)
}

// RetryAfter reports the wait carried by a rate-limit error anywhere in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
