package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	nextID    int
	sendErrs  []error
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	requestFn func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	updates   chan tgbotapi.Update
	stopped   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 100, updates: make(chan tgbotapi.Update, 1)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	msg := tgbotapi.Message{MessageID: f.nextID, Text: "sent"}
	if cfg, ok := c.(tgbotapi.MessageConfig); ok {
		msg.Chat.ID = cfg.ChatID
		msg.Text = cfg.Text
	}
	return msg, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requested = append(f.requested, c)
	fn := f.requestFn
	f.mu.Unlock()
	if fn != nil {
		return fn(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func newTestClient(api *fakeAPI) *BotClient {
	c := newBotClient(api, tgbotapi.User{ID: 1, UserName: "botcore_bot"}, logger.NewTestLogger())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func nextEvent(t *testing.T, c *BotClient) DeliveryEvent {
	t.Helper()
	select {
	case ev := <-c.Deliveries():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no delivery event")
		return DeliveryEvent{}
	}
}

func TestSend_EmitsDeliveryEvent(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)

	sent, err := c.Send(NewMessage(42, "hello", 7))
	require.NoError(t, err)
	assert.Equal(t, MessageKey{ChatID: 42, MessageID: 101}, sent.Key())
	assert.Equal(t, "hello", sent.Text)

	ev := nextEvent(t, c)
	assert.Equal(t, sent.Key(), ev.Key)
	assert.NoError(t, ev.Err)
}

func TestSend_ErrorEmitsNothing(t *testing.T) {
	api := newFakeAPI()
	api.sendErrs = []error{errors.New("Bad Request: chat not found")}
	c := newTestClient(api)

	_, err := c.Send(NewMessage(42, "hello", 0))
	require.Error(t, err)
	assert.Empty(t, c.Deliveries())
}

func TestSend_FullBufferDoesNotBlock(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)

	total := defaultDeliveryBuffer + 10
	for range total {
		_, err := c.Send(NewMessage(1, "x", 0))
		require.NoError(t, err)
	}

	seen := make(map[MessageKey]bool)
	for range total {
		seen[nextEvent(t, c).Key] = true
	}
	assert.Len(t, seen, total)
}

func TestEmit_StoppedClientReleasesHandoffs(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)

	for range defaultDeliveryBuffer + 5 {
		_, err := c.Send(NewMessage(1, "x", 0))
		require.NoError(t, err)
	}
	c.StopReceivingUpdates()

	released := make(chan struct{})
	go func() {
		c.handoffs.Wait()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("hand-off goroutines still blocked after stop")
	}

	_, err := c.Send(NewMessage(1, "late", 0))
	require.NoError(t, err)
	assert.Len(t, c.Deliveries(), defaultDeliveryBuffer)
	assert.True(t, c.logger.(*logger.TestLogger).HasEntry("warn", "Client stopped, dropping delivery event"))
}

func TestSendChatAction(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)

	require.NoError(t, c.SendChatAction(12, ActionTyping))
	require.Len(t, api.requested, 1)
	action, ok := api.requested[0].(tgbotapi.ChatActionConfig)
	require.True(t, ok)
	assert.Equal(t, "typing", action.Action)
	assert.Equal(t, int64(12), action.ChatID)
}

func TestSendWithRetry(t *testing.T) {
	t.Run("retries after 429", func(t *testing.T) {
		api := newFakeAPI()
		api.sendErrs = []error{errors.New("Too Many Requests: retry after 3"), nil}
		c := newTestClient(api)
		var slept []time.Duration
		c.sleep = func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}

		sent, err := c.SendWithRetry(context.Background(), NewMessage(5, "hi", 0), 2)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, slept[0])
		assert.Equal(t, sent.Key(), nextEvent(t, c).Key)
	})

	t.Run("gives up", func(t *testing.T) {
		api := newFakeAPI()
		tooMany := errors.New("Too Many Requests: retry after 1")
		api.sendErrs = []error{tooMany, tooMany, tooMany}
		c := newTestClient(api)

		_, err := c.SendWithRetry(context.Background(), NewMessage(5, "hi", 0), 1)
		assert.ErrorIs(t, err, tooMany)
		assert.Len(t, api.sent, 2)
	})

	t.Run("other errors are returned at once", func(t *testing.T) {
		api := newFakeAPI()
		api.sendErrs = []error{errors.New("Forbidden: bot was blocked by the user")}
		c := newTestClient(api)

		_, err := c.SendWithRetry(context.Background(), NewMessage(5, "hi", 0), 3)
		assert.Error(t, err)
		assert.Len(t, api.sent, 1)
	})

	t.Run("back-off ends with the context", func(t *testing.T) {
		api := newFakeAPI()
		api.sendErrs = []error{errors.New("Too Many Requests: retry after 30"), nil}
		c := newTestClient(api)
		c.sleep = sleepContext

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		started := time.Now()
		_, err := c.SendWithRetry(ctx, NewMessage(5, "hi", 0), 2)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(started), 5*time.Second)
		assert.Len(t, api.sent, 1)
	})
}

func TestDeleteMessage_EmitsFailure(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)

	_, err := c.DeleteMessage(9, 33)
	require.NoError(t, err)

	ev := nextEvent(t, c)
	assert.Equal(t, MessageKey{ChatID: 9, MessageID: 33}, ev.Key)
	assert.ErrorIs(t, ev.Err, ErrMessageDeleted)

	api.requestFn = func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		return nil, errors.New("Bad Request: message to delete not found")
	}
	_, err = c.DeleteMessage(9, 34)
	assert.Error(t, err)
	assert.Empty(t, c.Deliveries())
}

func TestGetUpdatesChan_ClosesWithSource(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(api)

	updates := c.GetUpdatesChan(c.NewUpdate(0, 60, 0))
	api.updates <- tgbotapi.Update{UpdateID: 5}

	got := <-updates
	assert.Equal(t, 5, got.UpdateID)

	c.StopReceivingUpdates()
	_, ok := <-updates
	assert.False(t, ok)
}

func TestExtractRetryAfter(t *testing.T) {
	assert.Equal(t, 17, extractRetryAfter("Too Many Requests: retry after 17"))
	assert.Equal(t, 0, extractRetryAfter("Bad Request"))
}

func TestSelf(t *testing.T) {
	c := newTestClient(newFakeAPI())
	assert.Equal(t, "botcore_bot", c.Self().UserName)
}
