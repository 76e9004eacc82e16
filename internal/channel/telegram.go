package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/huntingdonterrace/issueboard/internal/config"
)

const telegramChannelName = "telegram"

// TelegramBot is the slice of the bot API used for delivery, injectable
// in tests.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel delivers text reports to a Telegram chat. Sessions are
// token-authorized at Start; there is no pairing exchange.
type TelegramChannel struct {
	cfg        config.TelegramConfig
	botFactory BotFactory

	mu    sync.Mutex
	state SessionState
	bot   TelegramBot

	sendMu sync.Mutex
}

func NewTelegram(cfg config.TelegramConfig) (*TelegramChannel, error) {
	return NewTelegramWithFactory(cfg, defaultBotFactory)
}

// NewTelegramWithFactory creates a TelegramChannel with a custom bot
// factory (for testing).
func NewTelegramWithFactory(cfg config.TelegramConfig, factory BotFactory) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	return &TelegramChannel{
		cfg:        cfg,
		botFactory: factory,
		state:      StateUninitialized,
	}, nil
}

func (t *TelegramChannel) Name() string {
	return telegramChannelName
}

func (t *TelegramChannel) Format() Format {
	return FormatText
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateReady {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	client := http.DefaultClient
	if t.cfg.Proxy != "" {
		proxyURL, err := url.Parse(t.cfg.Proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.cfg.Token, client)
	if err != nil {
		t.mu.Lock()
		t.state = StateFailed
		t.mu.Unlock()
		return fmt.Errorf("create telegram bot: %w", err)
	}

	t.mu.Lock()
	t.bot = bot
	t.state = StateReady
	t.mu.Unlock()

	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.mu.Lock()
	if t.state == StateReady {
		t.state = StateDisconnected
	}
	t.mu.Unlock()
	log.Printf("[telegram] stopped")
	return nil
}

func (t *TelegramChannel) Ready() bool {
	return t.State() == StateReady
}

func (t *TelegramChannel) State() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *TelegramChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !t.Ready() {
		return ErrNotReady
	}

	target := strings.TrimSpace(recipient)
	if target == "" {
		target = strings.TrimSpace(t.cfg.ChatID)
	}
	if target == "" {
		return fmt.Errorf("telegram chat id is required")
	}

	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", target, err)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return ErrNotReady
	}

	if _, err := bot.Send(tgbotapi.NewMessage(chatID, msg.Body)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
