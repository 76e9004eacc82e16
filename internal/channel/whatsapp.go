package channel

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/huntingdonterrace/issueboard/internal/config"

	_ "modernc.org/sqlite"
)

const whatsappChannelName = "whatsapp"

const whatsappSendTimeout = 30 * time.Second

// waSender is the slice of the whatsmeow client used for delivery,
// injectable in tests.
type waSender interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// sessionEvent is the single intake alphabet for session transitions.
// Provider callbacks are translated into these and applied sequentially
// under one lock, so no transition can race another.
type sessionEvent int

const (
	eventQRCode sessionEvent = iota
	eventAuthenticated
	eventReady
	eventDisconnected
)

// WhatsAppChannel drives one messaging session through
// uninitialized -> pairing -> ready -> disconnected. Disconnected is
// terminal until Start is called again; Failed is terminal for the
// object's lifetime. Device credentials persist in a sqlite store, so a
// previously paired session skips the QR exchange.
type WhatsAppChannel struct {
	cfg            config.WhatsAppConfig
	client         *whatsmeow.Client
	sender         waSender
	storeContainer *sqlstore.Container
	handlerID      uint32

	mu     sync.Mutex
	state  SessionState
	lastQR string
	cancel context.CancelFunc

	sendMu sync.Mutex
}

func NewWhatsApp(cfg config.WhatsAppConfig) (*WhatsAppChannel, error) {
	storePath := strings.TrimSpace(cfg.StorePath)
	if storePath == "" {
		storePath = filepath.Join(config.ConfigDir(), "whatsapp-store.db")
	}

	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("create whatsapp store dir: %w", err)
	}

	storeDSN := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.ToSlash(storePath))
	container, err := sqlstore.New(context.Background(), "sqlite", storeDSN, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("init whatsapp session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Noop)

	ch := &WhatsAppChannel{
		cfg:            cfg,
		client:         client,
		sender:         client,
		storeContainer: container,
		state:          StateUninitialized,
	}
	ch.handlerID = ch.client.AddEventHandler(ch.handleEvent)

	return ch, nil
}

func (w *WhatsAppChannel) Name() string {
	return whatsappChannelName
}

func (w *WhatsAppChannel) Format() Format {
	return FormatText
}

// Start begins pairing. It is idempotent while a session is in flight: a
// second call during Pairing or Ready is a no-op, so exactly one QR
// challenge is ever issued per pairing attempt.
func (w *WhatsAppChannel) Start(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StatePairing, StateReady:
		w.mu.Unlock()
		return nil
	case StateFailed:
		w.mu.Unlock()
		return fmt.Errorf("whatsapp session failed permanently; restart the service to re-pair")
	}
	if w.client == nil {
		w.state = StateFailed
		w.mu.Unlock()
		return fmt.Errorf("whatsapp client not initialized")
	}
	w.state = StatePairing
	w.lastQR = ""
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.swapCancel(cancel)

	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			cancel()
			w.fail()
			return fmt.Errorf("get whatsapp qr channel: %w", err)
		}
		go w.consumeQR(ctx, qrChan)
	}

	if err := w.client.Connect(); err != nil {
		cancel()
		w.fail()
		return fmt.Errorf("connect whatsapp: %w", err)
	}

	go func() {
		<-ctx.Done()
		w.client.Disconnect()
	}()

	log.Printf("[whatsapp] session pairing started")
	return nil
}

func (w *WhatsAppChannel) Stop() error {
	w.swapCancel(nil)

	if w.client != nil {
		if w.handlerID != 0 {
			w.client.RemoveEventHandler(w.handlerID)
			w.handlerID = 0
		}
		w.client.Disconnect()
	}

	w.mu.Lock()
	if w.state != StateFailed {
		w.state = StateDisconnected
	}
	w.mu.Unlock()

	if w.storeContainer != nil {
		if err := w.storeContainer.Close(); err != nil {
			return fmt.Errorf("close whatsapp store: %w", err)
		}
		w.storeContainer = nil
	}

	log.Printf("[whatsapp] stopped")
	return nil
}

func (w *WhatsAppChannel) Ready() bool {
	return w.State() == StateReady
}

func (w *WhatsAppChannel) State() SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// PairingCode returns the latest QR payload, or "" outside Pairing.
// Observational only, surfaced through the operator API.
func (w *WhatsAppChannel) PairingCode() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePairing {
		return ""
	}
	return w.lastQR
}

// Send delivers one message to the recipient (falling back to the
// configured default). Sends on a session that is not Ready return
// ErrNotReady without touching the transport. Concurrent senders queue on
// sendMu, so at most one send is in flight per session.
func (w *WhatsAppChannel) Send(ctx context.Context, recipient string, msg Message) error {
	if !w.Ready() {
		return ErrNotReady
	}

	target := strings.TrimSpace(recipient)
	if target == "" {
		target = strings.TrimSpace(w.cfg.Recipient)
	}
	if target == "" {
		return fmt.Errorf("whatsapp recipient is required")
	}

	jid, err := parseWhatsAppJID(target)
	if err != nil {
		return fmt.Errorf("parse whatsapp recipient %q: %w", target, err)
	}

	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return nil
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	// The provider may disconnect while this call waited its turn.
	if !w.Ready() {
		return ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, whatsappSendTimeout)
	defer cancel()

	if _, err := w.sender.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	}); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}

	return nil
}

// swapCancel installs the new session context's cancel func and releases
// the previous session's context, so the watchdog goroutine of a stale
// session exits instead of outliving its replacement.
func (w *WhatsAppChannel) swapCancel(cancel context.CancelFunc) {
	w.mu.Lock()
	prev := w.cancel
	w.cancel = cancel
	w.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (w *WhatsAppChannel) fail() {
	w.mu.Lock()
	w.state = StateFailed
	w.lastQR = ""
	w.mu.Unlock()
}

// applyEvent is the single transition point of the session machine.
func (w *WhatsAppChannel) applyEvent(ev sessionEvent, detail string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch ev {
	case eventQRCode:
		if w.state == StatePairing {
			w.lastQR = detail
		}
	case eventAuthenticated:
		// Credentials accepted; the session stays Pairing until the
		// provider reports the connection usable.
		log.Printf("[whatsapp] authenticated")
	case eventReady:
		if w.state == StatePairing {
			w.state = StateReady
			w.lastQR = ""
			log.Printf("[whatsapp] session ready")
		}
	case eventDisconnected:
		if w.state == StatePairing || w.state == StateReady {
			w.state = StateDisconnected
			w.lastQR = ""
			log.Printf("[whatsapp] session disconnected; re-initialization required")
		}
	}
}

// handleEvent adapts whatsmeow callbacks onto the session alphabet.
func (w *WhatsAppChannel) handleEvent(evt interface{}) {
	switch evt.(type) {
	case *events.PairSuccess:
		w.applyEvent(eventAuthenticated, "")
	case *events.Connected:
		w.applyEvent(eventReady, "")
	case *events.Disconnected, *events.LoggedOut, *events.StreamReplaced:
		w.applyEvent(eventDisconnected, "")
	}
}

func (w *WhatsAppChannel) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}

			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				w.applyEvent(eventQRCode, evt.Code)
				log.Printf("[whatsapp] scan the QR code below to pair")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			default:
				if evt.Error != nil {
					log.Printf("[whatsapp] pairing event=%s error=%v", evt.Event, evt.Error)
				} else {
					log.Printf("[whatsapp] pairing event=%s", evt.Event)
				}
			}
		}
	}
}

func parseWhatsAppJID(raw string) (types.JID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.EmptyJID, fmt.Errorf("empty jid")
	}

	if strings.Contains(raw, "@") {
		return types.ParseJID(raw)
	}

	user := strings.TrimPrefix(raw, "+")
	if isDigitsOnly(user) {
		return types.NewJID(user, types.DefaultUserServer), nil
	}

	return types.ParseJID(raw)
}

func isDigitsOnly(val string) bool {
	if val == "" {
		return false
	}
	for _, r := range val {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
