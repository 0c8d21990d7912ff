package config

import (
	"os"
	"slices"
	"strings"
	"time"
)

type GlobalConfig struct {
	InterfaceLanguage string `koanf:"interface_language"`
}

type HTTPConfig struct {
	proxy   string
	noProxy []string
}

func NewHTTPConfig(proxy string, noProxy ...string) HTTPConfig {
	return HTTPConfig{proxy: proxy, noProxy: noProxy}
}

func (c HTTPConfig) GetProxy() string {
	if c.proxy != "" {
		return c.proxy
	}
	for _, name := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if proxyURL := os.Getenv(name); proxyURL != "" {
			return proxyURL
		}
	}
	return ""
}

func (c HTTPConfig) GetNoProxy() []string {
	if len(c.noProxy) > 0 {
		return c.noProxy
	}
	for _, name := range []string{"NO_PROXY", "no_proxy"} {
		if value := os.Getenv(name); value != "" {
			var hosts []string
			for host := range strings.SplitSeq(value, ",") {
				if host = strings.TrimSpace(host); host != "" {
					hosts = append(hosts, host)
				}
			}
			return hosts
		}
	}
	return nil
}

type LoggingConfig struct {
	LogLevel    string `koanf:"level"`
	Format      string `koanf:"format"`
	WriteInFile bool   `koanf:"write_in_file"`
	FilePath    string `koanf:"file_path"`
}

func (c LoggingConfig) Level() string {
	return strings.ToLower(c.LogLevel)
}

func (c LoggingConfig) IsDebug() bool {
	return c.Level() == "debug" || c.Level() == "trace"
}

func (c LoggingConfig) IsJSON() bool {
	return strings.EqualFold(c.Format, "json")
}

type TelegramConfig struct {
	Token         string  `koanf:"token"`
	APIEndpoint   string  `koanf:"api_endpoint"`
	UpdateTimeout int     `koanf:"update_timeout"`
	AllowedUsers  []int64 `koanf:"allowed_users"`
	AllowedChats  []int64 `koanf:"allowed_chats"`
}

func (c TelegramConfig) IsAllowed(userID int64, chatID int64) bool {
	return c.IsUserAllowed(userID) || c.IsChatAllowed(chatID)
}

func (c TelegramConfig) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return false
	}
	return slices.Contains(c.AllowedUsers, userID)
}

// IsChatAllowed is true for every chat when no allow list is configured.
func (c TelegramConfig) IsChatAllowed(chatID int64) bool {
	if len(c.AllowedChats) == 0 {
		return true
	}
	return slices.Contains(c.AllowedChats, chatID)
}

type DatabaseConfig struct {
	InvocationRetention time.Duration `koanf:"invocation_retention"`
	PurgeInterval       time.Duration `koanf:"purge_interval"`
}

type DeliveryConfig struct {
	Timeout          time.Duration `koanf:"timeout"`
	SettledRetention time.Duration `koanf:"settled_retention"`
	PruneInterval    time.Duration `koanf:"prune_interval"`
}

// RateLimitConfig holds overrides for a command's quota. Zero values mean
// the command's built-in quota applies.
type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	MaxCount int           `koanf:"max_count"`
	Window   time.Duration `koanf:"window"`
	Strategy string        `koanf:"strategy"`
}

type CommandConfig struct {
	Enabled   bool            `koanf:"enabled"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type SayCommandConfig struct {
	CommandConfig
	DeleteCommand bool `koanf:"delete_command"`
}

type RemindCommandConfig struct {
	CommandConfig
	MaxDelay time.Duration `koanf:"max_delay"`
}

type TitleCommandConfig struct {
	CommandConfig
	Timeout      time.Duration `koanf:"timeout"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
}
