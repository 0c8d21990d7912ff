package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muratoffalex/botcore/internal/telegram"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	// RateLimit is the command's built-in per-user quota. A zero MaxCount
	// means the command is not limited.
	RateLimit() RateLimit
	Handle(ctx context.Context, inv *Invocation) error
	Execute(ctx context.Context, inv *Invocation) error
}

type RateLimit struct {
	MaxCount int
	Window   time.Duration
	Strategy string
}

func (r RateLimit) Enabled() bool {
	return r.MaxCount > 0 && r.Window > 0
}

// RateLimitError is returned when the invoking user has used up the
// command's quota. It matches ErrRateLimitExceeded.
type RateLimitError struct {
	Command    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("command %s: %s, retry after %s",
		e.Command, ErrRateLimitExceeded, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetrySeconds rounds RetryAfter up to whole seconds, never below one.
func (e *RateLimitError) RetrySeconds() int {
	seconds := int((e.RetryAfter + time.Second - 1) / time.Second)
	return max(seconds, 1)
}

// Invocation is the context of a single command call: who called it, from
// which message, under which name and with what argument text.
type Invocation struct {
	ID      string
	Update  telegram.Update
	Message *telegram.MessageOriginal
	Name    string
	Args    string
}

func NewInvocation(id string, update telegram.Update, name, args string) *Invocation {
	return &Invocation{
		ID:      id,
		Update:  update,
		Message: update.Message,
		Name:    name,
		Args:    args,
	}
}

// ReplyText returns the text, or failing that the caption, of the message
// this invocation replies to.
func (i *Invocation) ReplyText() (string, bool) {
	if i.Message == nil || i.Message.ReplyToMessage == nil {
		return "", false
	}
	reply := i.Message.ReplyToMessage
	if reply.Text != "" {
		return reply.Text, true
	}
	if reply.Caption != "" {
		return reply.Caption, true
	}
	return "", false
}

// ReplyKey identifies the message this invocation replies to.
func (i *Invocation) ReplyKey() (telegram.MessageKey, bool) {
	if i.Message == nil || i.Message.ReplyToMessage == nil {
		return telegram.MessageKey{}, false
	}
	return telegram.MessageKey{
		ChatID:    i.Message.Chat.ID,
		MessageID: i.Message.ReplyToMessage.MessageID,
	}, true
}

func (i *Invocation) UserID() int64 {
	if i.Message == nil || i.Message.From == nil {
		return 0
	}
	return int64(i.Message.From.ID)
}

func (i *Invocation) ChatID() int64 {
	if i.Message == nil {
		return 0
	}
	return i.Message.Chat.ID
}

func (i *Invocation) MessageID() int {
	if i.Message == nil {
		return 0
	}
	return i.Message.MessageID
}

// Key identifies the invoking message.
func (i *Invocation) Key() telegram.MessageKey {
	return telegram.MessageKey{ChatID: i.ChatID(), MessageID: i.MessageID()}
}
