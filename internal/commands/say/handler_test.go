package say

import (
	"context"
	"testing"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di/ditest"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/telegram"
	"github.com/muratoffalex/botcore/internal/telegram/telegramtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invocation(userID int64, argText string, reply *telegram.MessageOriginal) *commands.Invocation {
	update := telegramtest.ReplyUpdate(42, userID, 9, "/say "+argText, reply)
	return commands.NewInvocation("id", update, CommandName, argText)
}

func TestSay(t *testing.T) {
	tests := []struct {
		name  string
		args  string
		reply *telegram.MessageOriginal
		want  string
	}{
		{name: "arguments", args: "hello world", want: "hello world"},
		{name: "arguments win over reply", args: "hello", reply: &telegram.MessageOriginal{Text: "foo"}, want: "hello"},
		{name: "reply text", reply: &telegram.MessageOriginal{Text: "foo"}, want: "foo"},
		{name: "reply caption", reply: &telegram.MessageOriginal{Caption: "photo caption"}, want: "photo caption"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := ditest.New(t, nil)
			cmd := New(env.Container)

			require.NoError(t, cmd.Handle(context.Background(), invocation(1, tt.args, tt.reply)))

			sent := env.Tg.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.want, sent[0].Text)
			assert.Equal(t, 9, sent[0].ReplyTo)
			assert.Empty(t, env.Tg.Deleted())
		})
	}
}

func TestSay_MissingText(t *testing.T) {
	env := ditest.New(t, nil)
	cmd := New(env.Container)

	err := cmd.Handle(context.Background(), invocation(1, "", nil))
	require.ErrorIs(t, err, args.ErrArgumentMissing)

	var argErr *args.Error
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "text", argErr.Argument)
	assert.Equal(t, cmd.Usage(), argErr.Usage)
	assert.Empty(t, env.Tg.Sent())
}

func TestSay_RateLimited(t *testing.T) {
	env := ditest.New(t, nil)
	cmd := New(env.Container)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, cmd.Handle(ctx, invocation(1, "spam", nil)), "attempt %d", i+1)
	}
	assert.ErrorIs(t, cmd.Handle(ctx, invocation(1, "spam", nil)), commands.ErrRateLimitExceeded)
	assert.NoError(t, cmd.Handle(ctx, invocation(2, "not spam", nil)))
	assert.Len(t, env.Tg.Sent(), 4)
}

func TestSay_DeletesCommandAfterDelivery(t *testing.T) {
	env := ditest.New(t, map[string]any{"commands.say.delete_command": true})
	cmd := New(env.Container)
	inv := invocation(1, "hello", nil)

	require.NoError(t, cmd.Handle(context.Background(), inv))
	assert.Equal(t, []telegram.MessageKey{inv.Key()}, env.Tg.Deleted())
}

func TestSay_KeepsCommandWhenUnconfirmed(t *testing.T) {
	env := ditest.New(t, map[string]any{
		"commands.say.delete_command": true,
		"delivery.timeout":            "20ms",
	})
	env.Tg.SetAutoDeliver(false)
	cmd := New(env.Container)

	require.NoError(t, cmd.Handle(context.Background(), invocation(1, "hello", nil)))
	assert.Empty(t, env.Tg.Deleted())
	assert.True(t, env.Log.HasEntry("warn", "Reply not confirmed, keeping command message"))
}

func TestSay_FailedDeliveryIsReturned(t *testing.T) {
	env := ditest.New(t, map[string]any{"commands.say.delete_command": true})
	env.Tg.SetAutoDeliver(false)
	cmd := New(env.Container)

	done := make(chan error, 1)
	go func() { done <- cmd.Handle(context.Background(), invocation(1, "hello", nil)) }()

	require.Eventually(t, func() bool { return len(env.Tg.Sent()) == 1 }, time.Second, time.Millisecond)
	key := env.Tg.Sent()[0].Key
	env.Tg.Fail(key, telegram.ErrMessageDeleted)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, telegram.ErrMessageDeleted)
	case <-time.After(5 * time.Second):
		t.Fatal("say did not return")
	}
	assert.Empty(t, env.Tg.Deleted())
}

func TestSay_CancelledWhileWaiting(t *testing.T) {
	env := ditest.New(t, map[string]any{"commands.say.delete_command": true})
	env.Tg.SetAutoDeliver(false)
	cmd := New(env.Container)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.Handle(ctx, invocation(1, "hello", nil)) }()

	require.Eventually(t, func() bool {
		sent := env.Tg.Sent()
		return len(sent) == 1 && env.Queue.Waiters(sent[0].Key) == 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("say did not return")
	}
	assert.Zero(t, env.Queue.Waiters(env.Tg.Sent()[0].Key))
}
