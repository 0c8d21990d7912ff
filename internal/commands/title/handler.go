package title

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/base"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/ratelimit"
	"github.com/muratoffalex/botcore/internal/telegram"
)

const (
	CommandName = "title"
	MaxTitleLen = 256

	userAgent = "Mozilla/5.0 (compatible; botcore/1.0)"
)

var errNotHTML = errors.New("not an HTML page")

type Command struct {
	*base.Command
	client  *http.Client
	maxBody int64
}

func New(di *di.Container) *Command {
	client := di.FetchClient
	if client == nil {
		client = http.DefaultClient
	}
	cmd := &Command{
		client:  client,
		maxBody: di.Cfg.GetTitleCommandConfig().MaxBodyBytes,
	}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"link"}
}

func (c *Command) Description() string {
	return "Show the title of a web page"
}

func (c *Command) Usage() string {
	return "/title <url> or reply to a message with /title"
}

func (c *Command) RateLimit() commands.RateLimit {
	return commands.RateLimit{
		MaxCount: 5,
		Window:   time.Minute,
		Strategy: ratelimit.StrategySlidingWindow,
	}
}

// Execute answers with the page title. Pages that cannot be loaded get a
// reply naming the reason instead of an error.
func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	target, err := args.Convert1(inv, inv.Args, args.URLGreedyOrReply("url"))
	if err != nil {
		return err
	}

	c.Typing(inv)
	log := c.Logger.WithFields(logger.Fields{
		"command": CommandName,
		"url":     target.Redacted(),
	})

	title, err := c.fetchTitle(ctx, target)
	var text string
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		log.WithError(err).Warn("Failed to fetch page title")
		text = c.L("title_failed", map[string]any{"URL": target.String(), "Reason": err.Error()})
	case title == "":
		text = c.L("title_missing", map[string]any{"URL": target.String()})
	default:
		log.WithField("title", title).Debug("Page title fetched")
		text = c.L("title_result", map[string]any{"Title": title, "URL": target.String()})
	}

	msg := telegram.NewMessage(inv.ChatID(), text, inv.MessageID())
	msg.LinkPreviewDisabled = true
	_, err = c.Reply(ctx, inv, msg)
	return err
}

func (c *Command) fetchTitle(ctx context.Context, target *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return "", errNotHTML
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, c.maxBody), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to decode page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	return pageTitle(doc), nil
}

// pageTitle prefers <title> and falls back to og:title. Whitespace runs are
// collapsed.
func pageTitle(doc *goquery.Document) string {
	title := doc.Find("title").First().Text()
	if strings.TrimSpace(title) == "" {
		title = doc.Find(`meta[property="og:title"]`).AttrOr("content", "")
	}
	title = strings.Join(strings.Fields(title), " ")
	if utf8.RuneCountInString(title) > MaxTitleLen {
		title = string([]rune(title)[:MaxTitleLen-1]) + "…"
	}
	return title
}
