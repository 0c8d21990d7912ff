package title

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/muratoffalex/botcore/internal/app/di/ditest"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/telegram"
	"github.com/muratoffalex/botcore/internal/telegram/telegramtest"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cp1251, err := charmap.Windows1251.NewEncoder().String("<title>Привет</title>")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>\n  Hello   World \n</title></head><body>hi</body></html>"))
	})
	mux.HandleFunc("/og", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:title" content="Open Graph title"></head></html>`))
	})
	mux.HandleFunc("/untitled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>nothing here</body></html>"))
	})
	mux.HandleFunc("/cp1251", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write([]byte(cp1251))
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<title>" + strings.Repeat("a", MaxTitleLen+50) + "</title>"))
	})
	mux.HandleFunc("/padded", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><!--" + strings.Repeat("x", 4096) + "--><title>Too far</title></html>"))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"nope"}`))
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<title>" + r.UserAgent() + "</title>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func invocation(argText string, reply *telegram.MessageOriginal) *commands.Invocation {
	update := telegramtest.ReplyUpdate(42, 1, 9, "/title "+argText, reply)
	return commands.NewInvocation("id", update, CommandName, argText)
}

func TestTitle(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "title is collapsed", path: "/page", want: "Hello World\n" + srv.URL + "/page"},
		{name: "open graph fallback", path: "/og", want: "Open Graph title\n" + srv.URL + "/og"},
		{name: "declared charset", path: "/cp1251", want: "Привет\n" + srv.URL + "/cp1251"},
		{name: "long title is cut", path: "/long", want: strings.Repeat("a", MaxTitleLen-1) + "…\n" + srv.URL + "/long"},
		{name: "user agent", path: "/agent", want: userAgent + "\n" + srv.URL + "/agent"},
		{name: "no title", path: "/untitled", want: "The page at " + srv.URL + "/untitled has no title"},
		{name: "unexpected status", path: "/missing", want: "Could not load " + srv.URL + "/missing: unexpected status 404 Not Found"},
		{name: "not html", path: "/json", want: "Could not load " + srv.URL + "/json: not an HTML page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := ditest.New(t, nil)
			cmd := New(env.Container)

			require.NoError(t, cmd.Handle(context.Background(), invocation(srv.URL+tt.path, nil)))

			sent := env.Tg.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.want, sent[0].Text)
			assert.Equal(t, 9, sent[0].ReplyTo)
			assert.Len(t, env.Tg.Actions(), 1)
		})
	}
}

func TestTitle_FromReply(t *testing.T) {
	srv := newServer(t)
	env := ditest.New(t, nil)
	cmd := New(env.Container)

	scheme, hostPath, _ := strings.Cut(srv.URL+"/page", "://")
	require.Equal(t, "http", scheme)
	reply := &telegram.MessageOriginal{Text: hostPath}

	require.NoError(t, cmd.Handle(context.Background(), invocation("", reply)))
	sent := env.Tg.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello World\n"+srv.URL+"/page", sent[0].Text)
}

func TestTitle_BodyLimit(t *testing.T) {
	srv := newServer(t)
	env := ditest.New(t, map[string]any{"commands.title.max_body_bytes": 1024})
	cmd := New(env.Container)

	require.NoError(t, cmd.Handle(context.Background(), invocation(srv.URL+"/padded", nil)))
	sent := env.Tg.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "The page at "+srv.URL+"/padded has no title", sent[0].Text)
}

func TestTitle_FetchFailureIsLogged(t *testing.T) {
	srv := newServer(t)
	target := srv.URL + "/page"
	srv.Close()

	env := ditest.New(t, nil)
	cmd := New(env.Container)

	require.NoError(t, cmd.Handle(context.Background(), invocation(target, nil)))
	sent := env.Tg.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].Text, "Could not load "+target+": "))
	assert.True(t, env.Log.HasEntry("warn", "Failed to fetch page title"))
}

func TestTitle_InvalidURL(t *testing.T) {
	env := ditest.New(t, nil)
	cmd := New(env.Container)

	for _, input := range []string{"http://", "not a url"} {
		err := cmd.Handle(context.Background(), invocation(input, nil))
		require.ErrorIs(t, err, args.ErrArgumentInvalid, input)

		var argErr *args.Error
		require.ErrorAs(t, err, &argErr)
		assert.Equal(t, "url", argErr.Argument)
		assert.Equal(t, cmd.Usage(), argErr.Usage)
	}
	assert.Empty(t, env.Tg.Sent())
	assert.Empty(t, env.Tg.Actions())
}

func TestTitle_CancelledContext(t *testing.T) {
	srv := newServer(t)
	env := ditest.New(t, nil)
	cmd := New(env.Container)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cmd.Handle(ctx, invocation(srv.URL+"/page", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, env.Tg.Sent())
}
