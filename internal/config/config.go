package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const (
	EnvPrefix = "BOTCORE_"

	GLOBAL_LANGUAGE             = "global.interface_language"
	HTTP_PROXY                  = "http.proxy"
	HTTP_NO_PROXY               = "http.no_proxy"
	TELEGRAM_TOKEN              = "telegram.token"
	TELEGRAM_API_ENDPOINT       = "telegram.api_endpoint"
	TELEGRAM_UPDATE_TIMEOUT     = "telegram.update_timeout"
	TELEGRAM_ALLOWED_USERS      = "telegram.allowed_users"
	TELEGRAM_ALLOWED_CHATS      = "telegram.allowed_chats"
	DELIVERY_TIMEOUT            = "delivery.timeout"
	DELIVERY_SETTLED_RETENTION  = "delivery.settled_retention"
	DELIVERY_PRUNE_INTERVAL     = "delivery.prune_interval"
	DATABASE_DSN                = "database.dsn"
	DATABASE_RETENTION          = "database.invocation_retention"
	DATABASE_PURGE_INTERVAL     = "database.purge_interval"
	LOGGING_LEVEL               = "logging.level"
	LOGGING_FORMAT              = "logging.format"
	LOGGING_WRITE_IN_FILE       = "logging.write_in_file"
	LOGGING_FILE_PATH           = "logging.file_path"
	COMMANDS_SAY_DELETE_COMMAND = "commands.say.delete_command"
	COMMANDS_REMIND_MAX_DELAY   = "commands.remind.max_delay"
	COMMANDS_TITLE_TIMEOUT      = "commands.title.timeout"
	COMMANDS_TITLE_MAX_BODY     = "commands.title.max_body_bytes"
)

var defaultSQLiteParams = map[string]string{
	"_journal":      "WAL",
	"_busy_timeout": "10000",
	"_synchronous":  "NORMAL",
}

type Config struct {
	k *koanf.Koanf
}

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to config file")
}

func defaults() map[string]any {
	return map[string]any{
		GLOBAL_LANGUAGE:             "en",
		HTTP_PROXY:                  "",
		TELEGRAM_TOKEN:              "",
		TELEGRAM_API_ENDPOINT:       "",
		TELEGRAM_UPDATE_TIMEOUT:     60,
		DELIVERY_TIMEOUT:            30 * time.Second,
		DELIVERY_SETTLED_RETENTION:  10 * time.Minute,
		DELIVERY_PRUNE_INTERVAL:     time.Minute,
		DATABASE_DSN:                "botcore.db",
		DATABASE_RETENTION:          30 * 24 * time.Hour,
		DATABASE_PURGE_INTERVAL:     time.Hour,
		LOGGING_LEVEL:               "info",
		LOGGING_FORMAT:              "text",
		LOGGING_WRITE_IN_FILE:       false,
		"commands.start.enabled":    true,
		"commands.cancel.enabled":   true,
		"commands.say.enabled":      true,
		COMMANDS_SAY_DELETE_COMMAND: false,
		"commands.roll.enabled":     true,
		"commands.remind.enabled":   true,
		COMMANDS_REMIND_MAX_DELAY:   24 * time.Hour,
		"commands.title.enabled":    true,
		COMMANDS_TITLE_TIMEOUT:      15 * time.Second,
		COMMANDS_TITLE_MAX_BODY:     1 << 20,
	}
}

// Load reads defaults, the first config file found and BOTCORE_* variables,
// in that order of precedence.
func Load() (*Config, error) {
	path := ""
	for _, candidate := range getConfigPaths() {
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", path, err)
		}
	}

	// BOTCORE_TELEGRAM__ALLOWED_USERS -> telegram.allowed_users
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"__", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	if k.String(TELEGRAM_TOKEN) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	return &Config{k: k}, nil
}

// New builds a Config from the defaults and values keyed by dotted path,
// without touching files or the environment.
func New(values map[string]any) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading values: %w", err)
	}
	return &Config{k: k}, nil
}

// GetCommandConfig returns per-command settings. Rate limit fields left
// unset in the config keep the command's own defaults.
func (c *Config) GetCommandConfig(name string) CommandConfig {
	prefix := "commands." + name
	enabled := true
	if c.k.Exists(prefix + ".enabled") {
		enabled = c.k.Bool(prefix + ".enabled")
	}

	rl := RateLimitConfig{
		Enabled:  true,
		MaxCount: c.k.Int(prefix + ".rate_limit.max_count"),
		Window:   c.k.Duration(prefix + ".rate_limit.window"),
		Strategy: c.k.String(prefix + ".rate_limit.strategy"),
	}
	if c.k.Exists(prefix + ".rate_limit.enabled") {
		rl.Enabled = c.k.Bool(prefix + ".rate_limit.enabled")
	}

	return CommandConfig{
		Enabled:   enabled,
		RateLimit: rl,
	}
}

func (c *Config) GetSayCommandConfig() SayCommandConfig {
	return SayCommandConfig{
		CommandConfig: c.GetCommandConfig("say"),
		DeleteCommand: c.k.Bool(COMMANDS_SAY_DELETE_COMMAND),
	}
}

func (c *Config) GetRemindCommandConfig() RemindCommandConfig {
	maxDelay := c.k.Duration(COMMANDS_REMIND_MAX_DELAY)
	if maxDelay <= 0 {
		maxDelay = 24 * time.Hour
	}
	return RemindCommandConfig{
		CommandConfig: c.GetCommandConfig("remind"),
		MaxDelay:      maxDelay,
	}
}

func (c *Config) GetTitleCommandConfig() TitleCommandConfig {
	cfg := TitleCommandConfig{
		CommandConfig: c.GetCommandConfig("title"),
		Timeout:       c.k.Duration(COMMANDS_TITLE_TIMEOUT),
		MaxBodyBytes:  c.k.Int64(COMMANDS_TITLE_MAX_BODY),
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func (c *Config) Telegram() TelegramConfig {
	return TelegramConfig{
		Token:         c.k.String(TELEGRAM_TOKEN),
		APIEndpoint:   c.k.String(TELEGRAM_API_ENDPOINT),
		UpdateTimeout: c.k.Int(TELEGRAM_UPDATE_TIMEOUT),
		AllowedUsers:  c.k.Int64s(TELEGRAM_ALLOWED_USERS),
		AllowedChats:  c.k.Int64s(TELEGRAM_ALLOWED_CHATS),
	}
}

func (c *Config) Delivery() DeliveryConfig {
	cfg := DeliveryConfig{
		Timeout:          c.k.Duration(DELIVERY_TIMEOUT),
		SettledRetention: c.k.Duration(DELIVERY_SETTLED_RETENTION),
		PruneInterval:    c.k.Duration(DELIVERY_PRUNE_INTERVAL),
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SettledRetention <= 0 {
		cfg.SettledRetention = 10 * time.Minute
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}
	return cfg
}

// Database returns invocation log housekeeping settings.
func (c *Config) Database() DatabaseConfig {
	cfg := DatabaseConfig{
		InvocationRetention: c.k.Duration(DATABASE_RETENTION),
		PurgeInterval:       c.k.Duration(DATABASE_PURGE_INTERVAL),
	}
	if cfg.InvocationRetention <= 0 {
		cfg.InvocationRetention = 30 * 24 * time.Hour
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Hour
	}
	return cfg
}

func (c *Config) Log() LoggingConfig {
	return LoggingConfig{
		LogLevel:    c.k.String(LOGGING_LEVEL),
		Format:      c.k.String(LOGGING_FORMAT),
		WriteInFile: c.k.Bool(LOGGING_WRITE_IN_FILE),
		FilePath:    c.k.String(LOGGING_FILE_PATH),
	}
}

func (c *Config) Global() GlobalConfig {
	return GlobalConfig{
		InterfaceLanguage: c.k.String(GLOBAL_LANGUAGE),
	}
}

func (c *Config) HTTP() HTTPConfig {
	return HTTPConfig{
		proxy:   c.k.String(HTTP_PROXY),
		noProxy: c.k.Strings(HTTP_NO_PROXY),
	}
}

// GetDatabaseDSN fills in sqlite pragmas the DSN doesn't set itself.
func (c *Config) GetDatabaseDSN() string {
	dsn := c.k.String(DATABASE_DSN)
	path, query, _ := strings.Cut(dsn, "?")

	params := make(map[string]string)
	if query != "" {
		for param := range strings.SplitSeq(query, "&") {
			if key, value, ok := strings.Cut(param, "="); ok {
				params[key] = value
			}
		}
	}

	for k, v := range defaultSQLiteParams {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}

	queryParams := make([]string, 0, len(params))
	for k, v := range params {
		queryParams = append(queryParams, k+"="+v)
	}
	sort.Strings(queryParams)

	return path + "?" + strings.Join(queryParams, "&")
}

func getConfigPaths() []string {
	if configPath != "" {
		return []string{configPath}
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, _ := os.UserHomeDir()
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		"botcore.toml",
		"config.toml",
		filepath.Join(xdgConfig, "botcore", "config.toml"),
		"/etc/botcore/config.toml",
	}
}
