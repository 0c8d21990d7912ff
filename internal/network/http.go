package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/muratoffalex/botcore/internal/config"
	"github.com/muratoffalex/botcore/internal/logger"
	"golang.org/x/net/proxy"
)

const (
	LogProxyConfigured    = "Proxy configured"
	LogProxyNotConfigured = "Proxy not configured, using direct connection"
)

type HTTPClientConfig struct {
	ProxyURL              string
	NoProxy               []string
	Timeout               time.Duration
	DisableKeepAlives     bool
	MaxIdleConns          int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	ForceAttemptHTTP2     bool
	DisableCompression    bool
}

// NewBotAPIHTTPClientConfig sizes the client for Bot API long polling:
// the request timeout must outlast the getUpdates timeout.
func NewBotAPIHTTPClientConfig(cfg config.HTTPConfig, pollTimeout time.Duration) HTTPClientConfig {
	return HTTPClientConfig{
		ProxyURL:              cfg.GetProxy(),
		NoProxy:               cfg.GetNoProxy(),
		Timeout:               pollTimeout + 30*time.Second,
		MaxIdleConns:          10,
		DisableKeepAlives:     false,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		DisableCompression:    false,
	}
}

// NewFetchHTTPClientConfig sizes the client for fetching web pages on a
// user's behalf. It shares the proxy settings of the Bot API client.
func NewFetchHTTPClientConfig(cfg config.HTTPConfig, timeout time.Duration) HTTPClientConfig {
	return HTTPClientConfig{
		ProxyURL:              cfg.GetProxy(),
		NoProxy:               cfg.GetNoProxy(),
		Timeout:               timeout,
		MaxIdleConns:          4,
		DisableKeepAlives:     true,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

func SetupHTTPClient(cfg HTTPClientConfig, log logger.Logger) (*http.Client, error) {
	transport := &http.Transport{
		ForceAttemptHTTP2:     cfg.ForceAttemptHTTP2,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		DisableCompression:    cfg.DisableCompression,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
	}

	if cfg.ProxyURL != "" {
		if err := configureProxy(transport, cfg.ProxyURL, cfg.NoProxy, log); err != nil {
			return nil, fmt.Errorf("failed to configure proxy: %w", err)
		}
	} else {
		log.Info(LogProxyNotConfigured)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

func configureProxy(transport *http.Transport, proxyURL string, noProxy []string, log logger.Logger) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("failed to parse proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "socks5", "socks5h":
		dialContext, err := createSOCKS5ProxyDialer(parsedURL, noProxy, log)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = dialContext
	case "http", "https":
		transport.Proxy = createProxyFunc(parsedURL, noProxy)
		logProxy(log, parsedURL, noProxy)
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

func logProxy(log logger.Logger, proxyURL *url.URL, noProxy []string) {
	log.WithFields(logger.Fields{
		"proxy":    proxyURL.Redacted(),
		"no_proxy": noProxy,
	}).Info(LogProxyConfigured)
}

func createProxyFunc(proxy *url.URL, noProxy []string) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if bypassProxy(req.URL.Hostname(), noProxy) {
			return nil, nil
		}
		return proxy, nil
	}
}

func bypassProxy(host string, noProxy []string) bool {
	for _, exclusion := range noProxy {
		if matchHost(host, exclusion) {
			return true
		}
	}
	return false
}

// matchHost supports exact hosts, "*" wildcards and NO_PROXY style
// ".domain" suffixes.
func matchHost(host, pattern string) bool {
	host = strings.ToLower(host)
	pattern = strings.ToLower(pattern)
	if strings.Contains(pattern, "*") {
		pattern = strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
		matched, _ := regexp.MatchString("^"+pattern+"$", host)
		return matched
	}
	if suffix, ok := strings.CutPrefix(pattern, "."); ok {
		return host == suffix || strings.HasSuffix(host, pattern)
	}
	return host == pattern
}

func createSimpleDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func createSOCKS5ProxyDialer(proxyURL *url.URL, noProxy []string, log logger.Logger) (dialFunc, error) {
	directDialer := createSimpleDialer()

	proxyDialer, err := proxy.FromURL(proxyURL, directDialer)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
	}
	viaProxy := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return proxyDialer.Dial(network, addr)
	}
	if cd, ok := proxyDialer.(proxy.ContextDialer); ok {
		viaProxy = cd.DialContext
	}

	logProxy(log, proxyURL, noProxy)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		if bypassProxy(host, noProxy) {
			return directDialer.DialContext(ctx, network, addr)
		}
		return viaProxy(ctx, network, addr)
	}, nil
}
