package channel

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/huntingdonterrace/issueboard/internal/config"
)

// Manager owns one live session per enabled channel for the process
// lifetime. Sessions are built once at startup and shared by the
// scheduler, the operator API and the CLI.
type Manager struct {
	channels map[string]Channel
}

func NewManager(cfg config.ChannelsConfig) (*Manager, error) {
	m := &Manager{channels: make(map[string]Channel)}

	if cfg.Email.Enabled {
		ch, err := NewEmail(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("init email channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	if cfg.WhatsApp.Enabled {
		ch, err := NewWhatsApp(cfg.WhatsApp)
		if err != nil {
			return nil, fmt.Errorf("init whatsapp channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegram(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	return m, nil
}

func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			log.Printf("[channel-mgr] starting %s", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *Manager) StopAll() error {
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

func (m *Manager) Enabled() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
