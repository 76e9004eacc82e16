package channel

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/huntingdonterrace/issueboard/internal/config"
)

const emailChannelName = "email"

const emailSendTimeout = 30 * time.Second

// smtpClient is the slice of the go-mail client used for delivery,
// injectable in tests.
type smtpClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailChannel delivers HTML reports over SMTP. There is no pairing step:
// the session is Ready as soon as construction validates the credentials,
// and only a failed transport call surfaces as an error.
type EmailChannel struct {
	cfg    config.EmailConfig
	client smtpClient

	mu    sync.Mutex
	state SessionState

	sendMu sync.Mutex
}

func NewEmail(cfg config.EmailConfig) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("email host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &EmailChannel{
		cfg:    cfg,
		client: client,
		state:  StateReady,
	}, nil
}

func (e *EmailChannel) Name() string {
	return emailChannelName
}

func (e *EmailChannel) Format() Format {
	return FormatHTML
}

func (e *EmailChannel) Start(ctx context.Context) error {
	log.Printf("[email] ready via %s:%d", e.cfg.Host, e.cfg.Port)
	return nil
}

func (e *EmailChannel) Stop() error {
	e.mu.Lock()
	e.state = StateDisconnected
	e.mu.Unlock()
	log.Printf("[email] stopped")
	return nil
}

func (e *EmailChannel) Ready() bool {
	return e.State() == StateReady
}

func (e *EmailChannel) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *EmailChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !e.Ready() {
		return ErrNotReady
	}

	to := strings.TrimSpace(recipient)
	if to == "" {
		to = strings.TrimSpace(e.cfg.Recipient)
	}
	if to == "" {
		return fmt.Errorf("email recipient is required")
	}

	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("set recipient %q: %w", to, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.Body)

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, emailSendTimeout)
	defer cancel()

	if err := e.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
