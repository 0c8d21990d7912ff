package remind

import (
	"context"
	"testing"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di/ditest"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/service/cancel"
	"github.com/muratoffalex/botcore/internal/telegram"
	"github.com/muratoffalex/botcore/internal/telegram/telegramtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invocation(argText string, reply *telegram.MessageOriginal) *commands.Invocation {
	update := telegramtest.ReplyUpdate(42, 1, 9, "/remind "+argText, reply)
	return commands.NewInvocation("id", update, CommandName, argText)
}

// newCommand returns a command whose waits finish at once and are recorded.
func newCommand(t *testing.T, values map[string]any) (*Command, *ditest.Env, *[]time.Duration) {
	env := ditest.New(t, values)
	cmd := New(env.Container)
	var waited []time.Duration
	cmd.wait = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}
	return cmd, env, &waited
}

func TestRemind(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		reply     *telegram.MessageOriginal
		wantDelay time.Duration
		wantText  string
	}{
		{name: "text argument", args: "@ann 1.5 stand-up time", wantDelay: 90 * time.Second, wantText: "⏰ @ann, reminder: stand-up time"},
		{name: "whole minutes", args: "@bob 2 tea", wantDelay: 2 * time.Minute, wantText: "⏰ @bob, reminder: tea"},
		{name: "text from reply", args: "@ann 0.5", reply: &telegram.MessageOriginal{Text: "ship the release"}, wantDelay: 30 * time.Second, wantText: "⏰ @ann, reminder: ship the release"},
		{name: "multi-line text", args: "@ann 1 first\nsecond", wantDelay: time.Minute, wantText: "⏰ @ann, reminder: first\nsecond"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, env, waited := newCommand(t, nil)

			require.NoError(t, cmd.Handle(context.Background(), invocation(tt.args, tt.reply)))

			assert.Equal(t, []time.Duration{tt.wantDelay}, *waited)
			sent := env.Tg.Sent()
			require.Len(t, sent, 2)
			assert.Contains(t, sent[0].Text, tt.wantDelay.String())
			assert.Equal(t, tt.wantText, sent[1].Text)
			assert.Equal(t, 9, sent[1].ReplyTo)
			assert.Equal(t, []telegramtest.ChatAction{{ChatID: 42, Action: telegram.ActionTyping}}, env.Tg.Actions())
		})
	}
}

func TestRemind_ArgumentsLeftToRight(t *testing.T) {
	tests := []struct {
		name         string
		args         string
		wantErr      error
		wantArgument string
		wantPosition int
	}{
		{name: "no mention", args: "ann 5 hello", wantErr: args.ErrArgumentInvalid, wantArgument: "user", wantPosition: 1},
		{name: "empty input", args: "", wantErr: args.ErrArgumentMissing, wantArgument: "user", wantPosition: 1},
		{name: "minutes not a number", args: "@ann soon hello", wantErr: args.ErrArgumentInvalid, wantArgument: "minutes", wantPosition: 2},
		{name: "minutes too small", args: "@ann 0.01 hello", wantErr: args.ErrArgumentInvalid, wantArgument: "minutes", wantPosition: 2},
		{name: "minutes past max delay", args: "@ann 1441 hello", wantErr: args.ErrArgumentInvalid, wantArgument: "minutes", wantPosition: 2},
		{name: "minutes missing", args: "@ann", wantErr: args.ErrArgumentMissing, wantArgument: "minutes", wantPosition: 2},
		{name: "text missing", args: "@ann 5", wantErr: args.ErrArgumentMissing, wantArgument: "text", wantPosition: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, env, waited := newCommand(t, nil)

			err := cmd.Handle(context.Background(), invocation(tt.args, nil))
			require.ErrorIs(t, err, tt.wantErr)

			var argErr *args.Error
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.wantArgument, argErr.Argument)
			assert.Equal(t, tt.wantPosition, argErr.Position)
			assert.Equal(t, cmd.Usage(), argErr.Usage)
			assert.Empty(t, *waited)
			assert.Empty(t, env.Tg.Sent())
		})
	}
}

func TestRemind_MaxDelayFromConfig(t *testing.T) {
	cmd, _, _ := newCommand(t, map[string]any{"commands.remind.max_delay": "10m"})

	err := cmd.Handle(context.Background(), invocation("@ann 11 hello", nil))
	assert.ErrorIs(t, err, args.ErrArgumentInvalid)
	assert.NoError(t, cmd.Handle(context.Background(), invocation("@ann 10 hello", nil)))
}

func TestRemind_CancelledWhileWaiting(t *testing.T) {
	env := ditest.New(t, nil)
	cmd := New(env.Container)
	inv := invocation("@ann 60 too late", nil)

	ctx, unregister := env.Cancel.Register(context.Background(), cancel.ActiveRequestInfo{
		ID:      inv.ID,
		Key:     inv.Key(),
		UserID:  inv.UserID(),
		Command: CommandName,
	})
	defer unregister()

	done := make(chan error, 1)
	go func() { done <- cmd.Handle(ctx, inv) }()

	require.Eventually(t, func() bool { return len(env.Tg.Sent()) == 1 }, time.Second, time.Millisecond)
	require.True(t, env.Cancel.Cancel(inv.Key()))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, cancel.IsUserCancel(ctx))
	case <-time.After(5 * time.Second):
		t.Fatal("remind did not return")
	}
	assert.Len(t, env.Tg.Sent(), 1, "only the acknowledgement is sent")
	assert.Empty(t, env.Tg.Actions())
}

func TestRemind_RateLimited(t *testing.T) {
	cmd, _, _ := newCommand(t, nil)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, cmd.Handle(ctx, invocation("@ann 1 hi", nil)), "attempt %d", i+1)
	}
	assert.ErrorIs(t, cmd.Handle(ctx, invocation("@ann 1 hi", nil)), commands.ErrRateLimitExceeded)
}
