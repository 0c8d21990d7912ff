package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muratoffalex/botcore/internal/app/di/ditest"
	"github.com/muratoffalex/botcore/internal/database"
	"github.com/muratoffalex/botcore/internal/telegram/telegramtest"
)

func newTestApplication(t *testing.T, values map[string]any) (*Application, *ditest.Env) {
	env := ditest.NewUnpumped(t, values)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app, err := newApplication(ctx, cancel, env.Container)
	require.NoError(t, err)
	return app, env
}

func TestRegisterCommands(t *testing.T) {
	app, _ := newTestApplication(t, nil)

	registered := app.bot.GetCommands()
	assert.Len(t, registered, 6)
	for _, name := range []string{"start", "say", "roll", "cancel", "remind", "title"} {
		assert.Contains(t, registered, name)
	}
}

func TestRegisterCommands_Disabled(t *testing.T) {
	app, env := newTestApplication(t, map[string]any{
		"commands.roll.enabled": false,
		"commands.say.enabled":  false,
	})

	registered := app.bot.GetCommands()
	assert.Len(t, registered, 4)
	assert.NotContains(t, registered, "roll")
	assert.NotContains(t, registered, "say")
	assert.True(t, env.Log.HasEntry("info", "Command disabled"))
}

func TestStartAndStop(t *testing.T) {
	app, env := newTestApplication(t, nil)

	done := make(chan error, 1)
	go func() { done <- app.Start() }()

	env.Tg.Push(telegramtest.CommandUpdate(1, 2, 3, "/roll 2"))
	require.Eventually(t, func() bool { return len(env.Tg.Sent()) == 1 }, 5*time.Second, time.Millisecond)

	app.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
}

func TestPurgeInvocations(t *testing.T) {
	app, env := newTestApplication(t, nil)
	ctx := context.Background()

	require.NoError(t, env.DB.SaveInvocation(ctx, database.Invocation{ID: "old", UserID: 1, Command: "say", Status: database.StatusOK}))
	_, err := env.DB.Exec("UPDATE invocations SET created_at = datetime('now', '-40 days') WHERE id = ?", "old")
	require.NoError(t, err)
	require.NoError(t, env.DB.SaveInvocation(ctx, database.Invocation{ID: "new", UserID: 1, Command: "say", Status: database.StatusOK}))

	app.purgeInvocations(app.cfg.Database().InvocationRetention)

	count, err := env.DB.CountInvocations(1, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, env.Log.HasEntry("info", "Purged old invocations"))
}
