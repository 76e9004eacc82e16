package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/huntingdonterrace/issueboard/internal/dispatch"
)

// Scheduler fires the report pipeline on a weekly cron cadence. Each
// firing runs the pipeline at most once: if a run is still in flight when
// the next tick lands, that tick is skipped outright, never queued.
type Scheduler struct {
	expr    string
	targets []dispatch.Target
	run     RunFunc
	now     func() time.Time

	cron    *rcron.Cron
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	lastAt  time.Time
	lastRun []dispatch.Attempt
}

// RunFunc executes one pipeline pass and returns the attempts it made.
type RunFunc func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt

func New(expr string, targets []dispatch.Target, run RunFunc) *Scheduler {
	return &Scheduler{
		expr:    expr,
		targets: targets,
		run:     run,
		now:     time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.targets) == 0 {
		log.Printf("[scheduler] no delivery targets configured; not starting")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = rcron.New()
	if _, err := s.cron.AddFunc(s.expr, s.fire); err != nil {
		return fmt.Errorf("register report schedule %q: %w", s.expr, err)
	}

	s.cron.Start()
	log.Printf("[scheduler] weekly report scheduled (%s), targets=%v", s.expr, s.targets)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[scheduler] stop timeout waiting for running firing")
		}
	}
	log.Printf("[scheduler] stopped")
}

// fire is one scheduled firing. The CAS guard makes overlapping execution
// impossible: a tick arriving mid-run observes running=true and returns.
func (s *Scheduler) fire() {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("[scheduler] previous firing still running; skipping this tick")
		return
	}
	defer s.running.Store(false)

	now := s.now()
	log.Printf("[scheduler] firing weekly report")

	attempts := s.run(s.ctx, now, s.targets)
	for _, a := range attempts {
		if a.Err != "" {
			log.Printf("[scheduler] attempt channel=%s outcome=%s err=%s", a.Channel, a.Outcome, a.Err)
		} else {
			log.Printf("[scheduler] attempt channel=%s outcome=%s", a.Channel, a.Outcome)
		}
	}

	s.mu.Lock()
	s.lastAt = now
	s.lastRun = attempts
	s.mu.Unlock()
}

// LastRun reports the previous firing for the status surface.
func (s *Scheduler) LastRun() (time.Time, []dispatch.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempts := make([]dispatch.Attempt, len(s.lastRun))
	copy(attempts, s.lastRun)
	return s.lastAt, attempts
}
