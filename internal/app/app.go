package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/config"
	"github.com/huntingdonterrace/issueboard/internal/dispatch"
	"github.com/huntingdonterrace/issueboard/internal/scheduler"
	"github.com/huntingdonterrace/issueboard/internal/server"
	"github.com/huntingdonterrace/issueboard/internal/store"
)

// Options for creating an App
type Options struct {
	Store      store.Store    // overrides the Airtable client (for testing)
	SignalChan chan os.Signal // for testing signal handling
}

// App wires the whole service: issue store, channel sessions, the report
// pipeline, the weekly scheduler and the operator HTTP API.
type App struct {
	cfg        *config.Config
	store      store.Store
	channels   *channel.Manager
	reporter   *dispatch.Reporter
	sched      *scheduler.Scheduler
	srv        *server.Server
	signalChan chan os.Signal
}

func New(cfg *config.Config) (*App, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg, signalChan: opts.SignalChan}

	st := opts.Store
	if st == nil {
		client, err := store.NewAirtableClient(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("create issue store client: %w", err)
		}
		st = client
	}
	a.store = st

	channels, err := channel.NewManager(cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	a.channels = channels

	a.reporter = dispatch.NewReporter(st, channels)

	a.sched = scheduler.New(cfg.Report.Cron, a.targets(), func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt {
		attempts, _ := a.reporter.Run(ctx, now, targets)
		return attempts
	})

	a.srv = server.New(cfg.Server, st, a.reporter, channels, a.sched)

	return a, nil
}

// targets maps the configured dispatch order onto the enabled channels.
// Recipients stay empty here; each channel falls back to its configured
// default at send time.
func (a *App) targets() []dispatch.Target {
	var targets []dispatch.Target
	for _, name := range a.cfg.Report.Order {
		if _, ok := a.channels.Get(name); ok {
			targets = append(targets, dispatch.Target{Channel: name})
		}
	}
	return targets
}

// Reporter exposes the pipeline for one-shot CLI delivery.
func (a *App) Reporter() *dispatch.Reporter {
	return a.reporter
}

func (a *App) Channels() *channel.Manager {
	return a.channels
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[app] channels started: %v", a.channels.Enabled())

	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if err := a.srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	sigCh := a.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[app] shutting down...")
	return a.Shutdown()
}

func (a *App) Shutdown() error {
	if err := a.srv.Stop(); err != nil {
		log.Printf("[app] server stop warning: %v", err)
	}
	a.sched.Stop()
	_ = a.channels.StopAll()
	log.Printf("[app] shutdown complete")
	return nil
}
