package channel

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/huntingdonterrace/issueboard/internal/config"
)

type stubChannel struct {
	name     string
	started  int
	stopped  int
	startErr error
}

func (s *stubChannel) Name() string                 { return s.name }
func (s *stubChannel) Format() Format               { return FormatText }
func (s *stubChannel) Start(context.Context) error  { s.started++; return s.startErr }
func (s *stubChannel) Stop() error                  { s.stopped++; return nil }
func (s *stubChannel) Ready() bool                  { return true }
func (s *stubChannel) State() SessionState          { return StateReady }
func (s *stubChannel) Send(context.Context, string, Message) error {
	return nil
}

func TestNewManager_EnabledChannels(t *testing.T) {
	cfg := config.ChannelsConfig{
		Email: config.EmailConfig{
			Enabled: true,
			Host:    "smtp.example.com",
			From:    "reports@example.com",
		},
		Telegram: config.TelegramConfig{
			Enabled: true,
			Token:   "fake-token",
		},
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	want := []string{"email", "telegram"}
	if got := m.Enabled(); !reflect.DeepEqual(got, want) {
		t.Errorf("Enabled() = %v, want %v", got, want)
	}

	if _, ok := m.Get("email"); !ok {
		t.Error("email channel not found")
	}
	if _, ok := m.Get("whatsapp"); ok {
		t.Error("whatsapp channel should not be configured")
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := config.ChannelsConfig{
		Email: config.EmailConfig{Enabled: true},
	}
	if _, err := NewManager(cfg); err == nil {
		t.Error("expected error for email channel without host")
	}
}

func TestManager_StartAll(t *testing.T) {
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	m := &Manager{channels: map[string]Channel{"a": a, "b": b}}

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	if a.started != 1 || b.started != 1 {
		t.Errorf("started counts = %d, %d, want 1, 1", a.started, b.started)
	}
}

func TestManager_StartAllError(t *testing.T) {
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b", startErr: errors.New("boom")}
	m := &Manager{channels: map[string]Channel{"a": a, "b": b}}

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected StartAll error")
	}
	// a failing sibling must not prevent other channels from starting
	if a.started != 1 {
		t.Errorf("a started %d times, want 1", a.started)
	}
}

func TestManager_StopAll(t *testing.T) {
	a := &stubChannel{name: "a"}
	m := &Manager{channels: map[string]Channel{"a": a}}

	if err := m.StopAll(); err != nil {
		t.Fatalf("StopAll error: %v", err)
	}
	if a.stopped != 1 {
		t.Errorf("stopped %d times, want 1", a.stopped)
	}
}
