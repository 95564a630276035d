// CLAUDE:SUMMARY Resolves discordweb configuration from defaults, a YAML file, a .env file and environment variables, validates it and derives component configs.
// Package config resolves the discordweb configuration. Sources apply in
// order, each overriding the previous: defaults, YAML file, .env file,
// process environment. CLI flags are applied on top by the command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/discordweb/action"
	"github.com/hazyhaar/discordweb/auth"
	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/client"
	"github.com/hazyhaar/discordweb/observability"
	"github.com/hazyhaar/discordweb/scrape"
	"github.com/hazyhaar/discordweb/session"
	"github.com/hazyhaar/discordweb/tools"
)

// Config is the resolved configuration.
type Config struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Headless bool   `yaml:"headless"`
	BaseURL  string `yaml:"base_url"`

	GuildIDs              []string `yaml:"guild_ids"`
	MaxMessagesPerChannel int      `yaml:"max_messages_per_channel"`
	DefaultHoursBack      int      `yaml:"default_hours_back"`

	SessionFile   string `yaml:"session_file"`
	SessionPolicy string `yaml:"session_policy"` // fresh | reuse
	ContentFormat string `yaml:"content_format"` // text | markdown

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	AuditDB            string `yaml:"audit_db"`
	AuditRetentionDays int    `yaml:"audit_retention_days"`

	Browser  BrowserConfig `yaml:"browser"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Bounds   BoundsConfig  `yaml:"bounds"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Bin              string   `yaml:"bin"`
	Stealth          bool     `yaml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
}

// TimeoutConfig bounds every wait.
type TimeoutConfig struct {
	Landmark      time.Duration `yaml:"landmark"`
	LoginRedirect time.Duration `yaml:"login_redirect"`
	Verification  time.Duration `yaml:"verification"`
	MessageList   time.Duration `yaml:"message_list"`
	Composer      time.Duration `yaml:"composer"`
	Close         time.Duration `yaml:"close"`
	Navigation    time.Duration `yaml:"navigation"`
}

// BoundsConfig caps the extraction loops.
type BoundsConfig struct {
	GuildScrollSteps  int `yaml:"guild_scroll_steps"`
	ClickThroughLimit int `yaml:"click_through_limit"`
	MessageRounds     int `yaml:"message_rounds"`
}

// Limits of validated fields.
const (
	MaxMessagesCeiling = 1000
	MaxHoursBack       = 720
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Headless:              true,
		BaseURL:               "https://discord.com",
		MaxMessagesPerChannel: 200,
		DefaultHoursBack:      24,
		SessionFile:           session.DefaultArtifactPath(),
		SessionPolicy:         string(client.PolicyFresh),
		ContentFormat:         string(scrape.FormatText),
		LogLevel:              "info",
		AuditRetentionDays:    30,
		Browser: BrowserConfig{
			Stealth:     true,
			XvfbDisplay: ":99",
		},
		Timeouts: TimeoutConfig{
			Landmark:      15 * time.Second,
			LoginRedirect: 60 * time.Second,
			Verification:  120 * time.Second,
			MessageList:   15 * time.Second,
			Composer:      10 * time.Second,
			Close:         10 * time.Second,
			Navigation:    30 * time.Second,
		},
		Bounds: BoundsConfig{
			GuildScrollSteps:  20,
			ClickThroughLimit: 10,
			MessageRounds:     10,
		},
	}
}

// Sources names where Load reads from.
type Sources struct {
	// File is a YAML file. Empty = none.
	File string
	// EnvFile is a dotenv file. A missing ".env" is ignored; any other
	// missing file is an error.
	EnvFile string
	// Getenv reads the process environment. Default: os.Getenv.
	Getenv func(string) string
}

// Load resolves the configuration. It does not validate: call Validate
// once flags are applied.
func Load(src Sources) (*Config, error) {
	cfg := Default()

	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", src.File, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", src.File, err)
		}
	}

	dotenv := map[string]string{}
	if src.EnvFile != "" {
		m, err := godotenv.Read(src.EnvFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, os.ErrNotExist) && src.EnvFile == ".env":
		default:
			return nil, fmt.Errorf("config: read %s: %w", src.EnvFile, err)
		}
	}

	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) (string, bool) {
		if v := getenv(key); v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DISCORD_EMAIL":          &c.Email,
		"DISCORD_PASSWORD":       &c.Password,
		"DISCORD_BASE_URL":       &c.BaseURL,
		"DISCORD_SESSION_FILE":   &c.SessionFile,
		"DISCORD_SESSION_POLICY": &c.SessionPolicy,
		"DISCORD_CONTENT_FORMAT": &c.ContentFormat,
		"DISCORD_LOG_LEVEL":      &c.LogLevel,
		"DISCORD_LOG_FILE":       &c.LogFile,
		"DISCORD_AUDIT_DB":       &c.AuditDB,
		"DISCORD_BROWSER_REMOTE": &c.Browser.Remote,
		"DISCORD_BROWSER_BIN":    &c.Browser.Bin,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_MESSAGES_PER_CHANNEL": &c.MaxMessagesPerChannel,
		"DEFAULT_HOURS_BACK":       &c.DefaultHoursBack,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("DISCORD_HEADLESS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: DISCORD_HEADLESS: %w", err)
		}
		c.Headless = b
	}
	if v, ok := lookup("DISCORD_GUILD_IDS"); ok {
		c.GuildIDs = SplitList(v)
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Email == "" || c.Password == "" {
		errs = append(errs, errors.New("DISCORD_EMAIL and DISCORD_PASSWORD are required"))
	}
	for _, id := range c.GuildIDs {
		if id == "" || strings.Trim(id, "0123456789") != "" {
			errs = append(errs, fmt.Errorf("guild_ids: %q is not a numeric id", id))
		}
	}
	if c.MaxMessagesPerChannel < 1 || c.MaxMessagesPerChannel > MaxMessagesCeiling {
		errs = append(errs, fmt.Errorf("max_messages_per_channel must be 1..%d, got %d", MaxMessagesCeiling, c.MaxMessagesPerChannel))
	}
	if c.DefaultHoursBack < 1 || c.DefaultHoursBack > MaxHoursBack {
		errs = append(errs, fmt.Errorf("default_hours_back must be 1..%d, got %d", MaxHoursBack, c.DefaultHoursBack))
	}
	if _, err := client.ParsePolicy(c.SessionPolicy); err != nil {
		errs = append(errs, err)
	}
	switch scrape.ContentFormat(c.ContentFormat) {
	case scrape.FormatText, scrape.FormatMarkdown:
	default:
		errs = append(errs, fmt.Errorf("content_format must be text or markdown, got %q", c.ContentFormat))
	}
	if _, err := observability.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level returns the slog level of LogLevel, info when invalid.
func (c *Config) Level() slog.Level {
	l, _ := observability.ParseLevel(c.LogLevel)
	return l
}

// RodConfig derives the browser driver configuration.
func (c *Config) RodConfig(logger *slog.Logger) browser.RodConfig {
	return browser.RodConfig{
		RemoteURL:         c.Browser.Remote,
		Bin:               c.Browser.Bin,
		Stealth:           c.Browser.Stealth,
		ResourceBlocking:  c.Browser.ResourceBlocking,
		XvfbDisplay:       c.Browser.XvfbDisplay,
		NavigationTimeout: c.Timeouts.Navigation,
		Logger:            logger,
	}
}

// ClientConfig derives the client configuration.
func (c *Config) ClientConfig() client.Config {
	policy, _ := client.ParsePolicy(c.SessionPolicy)
	return client.Config{
		Credentials:     session.Credentials{Email: c.Email, Password: c.Password},
		Headless:        c.Headless,
		ArtifactPath:    c.SessionFile,
		Policy:          policy,
		CloseTimeout:    c.Timeouts.Close,
		DefaultGuildIDs: c.GuildIDs,
		Auth: auth.Config{
			BaseURL:             c.BaseURL,
			LandmarkTimeout:     c.Timeouts.Landmark,
			RedirectTimeout:     c.Timeouts.LoginRedirect,
			VerificationTimeout: c.Timeouts.Verification,
		},
		Scrape: scrape.Config{
			BaseURL:            c.BaseURL,
			LandmarkTimeout:    c.Timeouts.Landmark,
			MessageListTimeout: c.Timeouts.MessageList,
			GuildScrollSteps:   c.Bounds.GuildScrollSteps,
			ClickThroughLimit:  c.Bounds.ClickThroughLimit,
			MessageRounds:      c.Bounds.MessageRounds,
			ContentFormat:      scrape.ContentFormat(c.ContentFormat),
		},
		Action: action.Config{
			BaseURL:         c.BaseURL,
			ComposerTimeout: c.Timeouts.Composer,
		},
	}
}

// Limits derives the tool argument limits.
func (c *Config) Limits() tools.Limits {
	return tools.Limits{
		DefaultHoursBack: c.DefaultHoursBack,
		MaxMessages:      c.MaxMessagesPerChannel,
	}
}
