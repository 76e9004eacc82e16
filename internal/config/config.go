package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	rcron "github.com/robfig/cron/v3"
)

const (
	DefaultReportCron = "0 9 * * 1" // Monday 09:00 local
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 18420
	DefaultView       = "Grid view"
	DefaultSMTPPort   = 587
)

type Config struct {
	Store    StoreConfig    `json:"store"`
	Channels ChannelsConfig `json:"channels"`
	Report   ReportConfig   `json:"report"`
	Server   ServerConfig   `json:"server"`
}

// StoreConfig describes the Airtable base holding the issue records.
type StoreConfig struct {
	APIKey  string `json:"apiKey"`
	BaseID  string `json:"baseId"`
	Table   string `json:"table"`
	View    string `json:"view,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Email    EmailConfig    `json:"email"`
}

type WhatsAppConfig struct {
	Enabled   bool   `json:"enabled"`
	StorePath string `json:"storePath,omitempty"`
	Recipient string `json:"recipient,omitempty"` // default phone number or JID
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chatId,omitempty"` // default chat
	Proxy   string `json:"proxy,omitempty"`
}

type EmailConfig struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      int    `json:"port,omitempty"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	From      string `json:"from"`
	Recipient string `json:"recipient,omitempty"` // default address
}

// ReportConfig controls the weekly delivery cadence. Order lists channel
// names in dispatch order; each enabled name becomes one delivery target
// per firing.
type ReportConfig struct {
	Cron  string   `json:"cron"`
	Order []string `json:"order,omitempty"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			View: DefaultView,
		},
		Channels: ChannelsConfig{
			Email: EmailConfig{Port: DefaultSMTPPort},
		},
		Report: ReportConfig{
			Cron:  DefaultReportCron,
			Order: []string{"email", "whatsapp"},
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".issueboard")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return loadConfigFrom(ConfigPath())
}

func loadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Store.View == "" {
		cfg.Store.View = DefaultView
	}
	if cfg.Report.Cron == "" {
		cfg.Report.Cron = DefaultReportCron
	}
	if len(cfg.Report.Order) == 0 {
		cfg.Report.Order = DefaultConfig().Report.Order
	}
	if cfg.Channels.Email.Port == 0 {
		cfg.Channels.Email.Port = DefaultSMTPPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Environment variable overrides. The AIRTABLE_* and EMAIL_* names match
// what the hosted deployment already exports.
func applyEnv(cfg *Config) {
	if key := os.Getenv("AIRTABLE_API_KEY"); key != "" {
		cfg.Store.APIKey = key
	}
	if base := os.Getenv("AIRTABLE_BASE_ID"); base != "" {
		cfg.Store.BaseID = base
	}
	if table := os.Getenv("AIRTABLE_TABLE_NAME"); table != "" {
		cfg.Store.Table = table
	}
	if user := os.Getenv("EMAIL_USER"); user != "" {
		cfg.Channels.Email.Username = user
	}
	if pass := os.Getenv("EMAIL_PASS"); pass != "" {
		cfg.Channels.Email.Password = pass
	}
	if from := os.Getenv("EMAIL_FROM"); from != "" {
		cfg.Channels.Email.From = from
	}
	if rcpt := os.Getenv("EMAIL_RECIPIENT"); rcpt != "" {
		cfg.Channels.Email.Recipient = rcpt
	}
	if host := os.Getenv("EMAIL_HOST"); host != "" {
		cfg.Channels.Email.Host = host
	}
	if port := os.Getenv("EMAIL_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Channels.Email.Port = parsed
		}
	}
	if token := os.Getenv("ISSUEBOARD_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if expr := os.Getenv("ISSUEBOARD_REPORT_CRON"); expr != "" {
		cfg.Report.Cron = expr
	}
}

// Validate checks everything that must hold before the process starts.
// Channel credentials are validated here once, not re-checked per send.
func (c *Config) Validate() error {
	if _, err := rcron.ParseStandard(c.Report.Cron); err != nil {
		return fmt.Errorf("invalid report cron %q: %w", c.Report.Cron, err)
	}

	for _, name := range c.Report.Order {
		switch name {
		case "email", "whatsapp", "telegram":
		default:
			return fmt.Errorf("unknown channel %q in report order", name)
		}
	}

	if c.Channels.Email.Enabled {
		e := c.Channels.Email
		if e.Host == "" || e.From == "" {
			return fmt.Errorf("email channel requires host and from address")
		}
	}
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("telegram channel requires a bot token")
	}

	return nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
