package roll

import (
	"context"
	"testing"

	"github.com/muratoffalex/botcore/internal/app/di/ditest"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/telegram/telegramtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T) (*Command, *ditest.Env) {
	env := ditest.New(t, nil)
	cmd := New(env.Container)
	cmd.intN = func(n int) int { return n - 1 }
	return cmd, env
}

func invocation(userID int64, argText string) *commands.Invocation {
	return commands.NewInvocation("id", telegramtest.CommandUpdate(10, userID, 3, "/roll "+argText), CommandName, argText)
}

func TestRoll(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{name: "default sides", args: "", want: "🎲 6 (1-6)"},
		{name: "custom sides", args: "20", want: "🎲 20 (1-20)"},
		{name: "lower bound", args: "2", want: "🎲 2 (1-2)"},
		{name: "upper bound", args: "1000", want: "🎲 1000 (1-1000)"},
		{name: "trailing text ignored", args: "12 please", want: "🎲 12 (1-12)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, env := newTestCommand(t)

			require.NoError(t, cmd.Handle(context.Background(), invocation(1, tt.args)))

			sent := env.Tg.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.want, sent[0].Text)
		})
	}
}

func TestRoll_InvalidSides(t *testing.T) {
	for _, input := range []string{"1", "1001", "-5", "many"} {
		t.Run(input, func(t *testing.T) {
			cmd, env := newTestCommand(t)

			err := cmd.Handle(context.Background(), invocation(1, input))
			require.ErrorIs(t, err, args.ErrArgumentInvalid)

			var argErr *args.Error
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, "sides", argErr.Argument)
			assert.Equal(t, 1, argErr.Position)
			assert.Equal(t, input, argErr.Input)
			assert.Equal(t, "/roll [sides]", argErr.Usage)
			assert.Empty(t, env.Tg.Sent())
		})
	}
}

func TestRoll_ResultInRange(t *testing.T) {
	env := ditest.New(t, nil)
	cmd := New(env.Container)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, cmd.Handle(ctx, invocation(int64(i+1), "3")))
	}
	for _, msg := range env.Tg.Sent() {
		assert.Contains(t, []string{"🎲 1 (1-3)", "🎲 2 (1-3)", "🎲 3 (1-3)"}, msg.Text)
	}
}

func TestRoll_RateLimited(t *testing.T) {
	cmd, _ := newTestCommand(t)
	ctx := context.Background()

	for range 5 {
		require.NoError(t, cmd.Handle(ctx, invocation(1, "")))
	}
	err := cmd.Handle(ctx, invocation(1, ""))
	require.ErrorIs(t, err, commands.ErrRateLimitExceeded)

	var rlErr *commands.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, CommandName, rlErr.Command)
	assert.LessOrEqual(t, rlErr.RetrySeconds(), 30)
}
