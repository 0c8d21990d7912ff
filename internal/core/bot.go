package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/cache"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/config"
	"github.com/muratoffalex/botcore/internal/database"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/queue"
	"github.com/muratoffalex/botcore/internal/service"
	"github.com/muratoffalex/botcore/internal/service/cancel"
	"github.com/muratoffalex/botcore/internal/telegram"
)

const (
	saveInvocationTimeout = 5 * time.Second
	knownUserTTL          = time.Hour
)

var errUpdatesClosed = errors.New("updates channel closed")

type Bot struct {
	commands  map[string]commands.Command
	logger    logger.Logger
	queue     *queue.Queue[telegram.MessageKey]
	db        database.Database
	tg        telegram.Client
	cfg       *config.Config
	localizer *service.Localizer
	cancel    *cancel.Manager
	// users remembers registry state per user id to skip lookups.
	users *cache.MemoryCache[int64, string]

	inflight sync.WaitGroup
}

func NewBot(
	tg telegram.Client,
	queue *queue.Queue[telegram.MessageKey],
	logger logger.Logger,
	db database.Database,
	cfg *config.Config,
	localizer *service.Localizer,
	cancelManager *cancel.Manager,
) (*Bot, error) {
	if tg == nil || queue == nil || cfg == nil || localizer == nil || cancelManager == nil {
		return nil, errors.New("bot dependencies are not configured")
	}
	return &Bot{
		commands:  make(map[string]commands.Command),
		tg:        tg,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
		db:        db,
		localizer: localizer,
		cancel:    cancelManager,
		users:     cache.NewMemoryCache[int64, string](),
	}, nil
}

// Start runs the update loop, the delivery pump and the queue janitor until
// ctx is done, then waits for running commands to return.
func (b *Bot) Start(ctx context.Context) error {
	u := b.tg.NewUpdate(0, b.cfg.Telegram().UpdateTimeout, 0)
	updates := b.tg.GetUpdatesChan(u)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.pumpDeliveries(gctx)
	})
	g.Go(func() error {
		return b.queue.Run(gctx, b.cfg.Delivery().PruneInterval)
	})
	g.Go(func() error {
		return b.pruneUsers(gctx, b.cfg.Delivery().PruneInterval)
	})
	g.Go(func() error {
		defer b.tg.StopReceivingUpdates()
		return b.receive(gctx, updates)
	})

	b.logger.WithField("commands", len(b.commands)).Info("Bot started")

	err := g.Wait()
	b.inflight.Wait()
	b.logger.Info("Bot stopped")
	return err
}

func (b *Bot) receive(ctx context.Context, updates <-chan telegram.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errUpdatesClosed
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// pumpDeliveries forwards the client's delivery events to the queue.
func (b *Bot) pumpDeliveries(ctx context.Context) error {
	events := b.tg.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				b.queue.NotifyFailed(ev.Key, ev.Err)
			} else {
				b.queue.NotifyDelivered(ev.Key)
			}
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	if jsonData, err := json.Marshal(update); err == nil {
		b.logger.WithField("update_structure", string(jsonData)).Trace("Received update")
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	// Check permissions
	if !b.cfg.Telegram().IsAllowed(msg.From.ID, msg.Chat.ID) {
		b.logger.WithFields(logger.Fields{
			"user_id":  msg.From.ID,
			"username": msg.From.UserName,
			"chat_id":  msg.Chat.ID,
		}).Warn("Unauthorized access attempt")
		return
	}

	b.storeUser(msg.From)

	if msg.ForwardOrigin != nil {
		return
	}

	commandText := msg.Text
	if commandText == "" {
		commandText = msg.Caption
	}
	name, argText, ok := parseCommand(commandText, b.tg.Self().UserName)
	if !ok {
		return
	}

	cmd := b.findCommand(name)
	if cmd == nil {
		return
	}

	inv := commands.NewInvocation(uuid.NewString(), update, name, argText)
	b.logger.WithFields(logger.Fields{
		"command":       cmd.Name(),
		"invoked_as":    name,
		"invocation_id": inv.ID,
		"user_id":       msg.From.ID,
		"username":      msg.From.UserName,
		"args":          argText,
	}).Info("Handling command")

	b.inflight.Go(func() {
		b.dispatch(ctx, cmd, inv)
	})
}

// dispatch runs one invocation under its own cancellable context, answers
// its error and records the outcome.
func (b *Bot) dispatch(parent context.Context, cmd commands.Command, inv *commands.Invocation) {
	ctx, unregister := b.cancel.Register(parent, cancel.ActiveRequestInfo{
		ID:      inv.ID,
		Key:     inv.Key(),
		UserID:  inv.UserID(),
		Command: cmd.Name(),
	})
	defer unregister()

	started := time.Now()
	err := cmd.Handle(ctx, inv)
	elapsed := time.Since(started)

	log := b.logger.WithFields(logger.Fields{
		"command":       cmd.Name(),
		"invocation_id": inv.ID,
		"duration":      elapsed,
	})
	if err != nil {
		log = log.WithError(err)
	}

	if text, ok := b.errorReply(ctx, err); ok {
		b.sendErrorMessage(parent, text, inv.ChatID(), inv.MessageID())
	}

	status := invocationStatus(err)
	switch status {
	case database.StatusOK:
		log.Debug("Command completed")
	case database.StatusFailed:
		log.Error("Failed to handle command")
	default:
		log.WithField("status", status).Info("Command not completed")
	}

	b.saveInvocation(ctx, database.Invocation{
		ID:        inv.ID,
		ChatID:    inv.ChatID(),
		MessageID: inv.MessageID(),
		UserID:    inv.UserID(),
		Command:   cmd.Name(),
		Status:    status,
		Error:     errorString(err),
		Duration:  elapsed,
	})
}

// errorReply phrases err for the invoking user. ok is false when the user
// should not be answered.
func (b *Bot) errorReply(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var argErr *args.Error
	var rlErr *commands.RateLimitError
	switch {
	case errors.Is(err, context.Canceled):
		if cancel.IsUserCancel(ctx) {
			return b.localizer.Localize("cancelled", nil), true
		}
		return "", false
	case errors.As(err, &argErr):
		data := map[string]any{"Argument": argErr.Argument, "Input": argErr.Input}
		var text string
		if argErr.Kind == args.Missing {
			text = b.localizer.Localize("argument_missing", data)
		} else {
			text = b.localizer.Localize("argument_invalid", data)
		}
		if argErr.Usage != "" {
			text += "\n" + b.localizer.Localize("usage", map[string]any{"Usage": argErr.Usage})
		}
		return text, true
	case errors.As(err, &rlErr):
		seconds := rlErr.RetrySeconds()
		return b.localizer.LocalizePlural("rate_limited", seconds, map[string]any{"Seconds": seconds}), true
	case errors.Is(err, queue.ErrWaitTimedOut):
		return "", false
	case errors.Is(err, queue.ErrDeliveryFailed):
		return b.localizer.Localize("delivery_failed", nil), true
	default:
		return fmt.Sprintf("%s: %v", b.localizer.Localize("error", nil), err), true
	}
}

func invocationStatus(err error) database.InvocationStatus {
	switch {
	case err == nil:
		return database.StatusOK
	case errors.Is(err, commands.ErrRateLimitExceeded):
		return database.StatusRateLimited
	case errors.Is(err, args.ErrArgumentMissing), errors.Is(err, args.ErrArgumentInvalid):
		return database.StatusBadArgs
	case errors.Is(err, context.Canceled):
		return database.StatusCancelled
	default:
		return database.StatusFailed
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (b *Bot) saveInvocation(ctx context.Context, inv database.Invocation) {
	if b.db == nil {
		return
	}
	ctx, stop := context.WithTimeout(context.WithoutCancel(ctx), saveInvocationTimeout)
	defer stop()

	if err := b.db.SaveInvocation(ctx, inv); err != nil {
		b.logger.WithError(err).WithField("invocation_id", inv.ID).Warn("Failed to save invocation")
	}
}

func (b *Bot) pruneUsers(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.users.Prune()
		}
	}
}

func userFingerprint(u database.User) string {
	return u.FirstName + "\x00" + u.Username
}

func (b *Bot) storeUser(from *telegram.UserOriginal) {
	if b.db == nil {
		return
	}
	user := database.User{
		ID:        from.ID,
		FirstName: from.FirstName,
		Username:  from.UserName,
	}
	fingerprint := userFingerprint(user)
	if known, ok := b.users.Get(user.ID); ok && known == fingerprint {
		return
	}

	storedUser, err := b.db.GetUser(from.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		b.logger.WithField("user", user).Info("Store new user")
		if err := b.db.SaveUser(user); err != nil {
			b.logger.WithError(err).WithField("user", user).Error("Error save new user")
			return
		}
	case err != nil:
		b.logger.WithError(err).Error("Error get user by id")
		return
	case !user.SameProfile(*storedUser):
		if err := b.db.SaveUser(user); err != nil {
			b.logger.WithError(err).WithField("user", user).Error("Error update user")
			return
		}
	}
	b.users.Set(user.ID, fingerprint, knownUserTTL)
}

func (b *Bot) RegisterCommand(cmd commands.Command) {
	if cmd == nil {
		b.logger.Error("Attempting to register nil command")
		return
	}

	name := cmd.Name()
	if name == "" {
		b.logger.Error("Attempting to register command with empty name")
		return
	}

	b.logger.WithFields(logger.Fields{
		"command": name,
		"aliases": cmd.Aliases(),
	}).Debug("Registering command")

	b.commands[name] = cmd
}

func (b *Bot) GetCommands() map[string]commands.Command {
	return b.commands
}

func (b *Bot) findCommand(name string) commands.Command {
	if cmd, ok := b.commands[name]; ok {
		return cmd
	}
	for _, cmd := range b.commands {
		if slices.Contains(cmd.Aliases(), name) {
			return cmd
		}
	}
	return nil
}

// parseCommand splits "/name@bot args" into the lower-cased name and the
// argument text. ok is false for plain text and for commands addressed to
// another bot.
func parseCommand(text, botUsername string) (name, argText string, ok bool) {
	text = strings.TrimLeft(text, " \t")
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	name, target, addressed := strings.Cut(head, "@")
	if addressed && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(rest), true
}

// sendErrorMessage runs under the bot's context so a reply to a cancelled
// invocation still goes out.
func (b *Bot) sendErrorMessage(ctx context.Context, text string, chatID int64, messageID int) {
	errorMsg := telegram.NewMessage(chatID, text, messageID)
	if _, err := b.tg.SendWithRetry(ctx, errorMsg, 0); err != nil {
		b.logger.WithError(err).Error("Failed to send error message")
	}
}
