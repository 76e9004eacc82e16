package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/dispatch"
)

func TestScheduler_FireRecordsLastRun(t *testing.T) {
	fireTime := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	var gotTargets []dispatch.Target

	s := New("0 9 * * 1", []dispatch.Target{{Channel: "email"}}, func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt {
		gotTargets = targets
		return []dispatch.Attempt{{Channel: "email", Outcome: dispatch.OutcomeSent, At: now}}
	})
	s.now = func() time.Time { return fireTime }
	s.ctx = context.Background()

	s.fire()

	if len(gotTargets) != 1 || gotTargets[0].Channel != "email" {
		t.Errorf("targets = %v", gotTargets)
	}

	at, attempts := s.LastRun()
	if !at.Equal(fireTime) {
		t.Errorf("last fire at %v, want %v", at, fireTime)
	}
	if len(attempts) != 1 || attempts[0].Outcome != dispatch.OutcomeSent {
		t.Errorf("last attempts = %v", attempts)
	}
}

func TestScheduler_OverlappingTickSkipped(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32

	s := New("0 9 * * 1", []dispatch.Target{{Channel: "email"}}, func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt {
		runs.Add(1)
		<-release
		return nil
	})
	s.ctx = context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.fire()
	}()

	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// a tick landing mid-run must return without invoking the pipeline
	s.fire()
	if got := runs.Load(); got != 1 {
		t.Errorf("pipeline ran %d times, want 1", got)
	}

	close(release)
	wg.Wait()

	s.fire()
	if got := runs.Load(); got != 2 {
		t.Errorf("pipeline ran %d times after release, want 2", got)
	}
}

func TestScheduler_StartRejectsBadExpr(t *testing.T) {
	s := New("not a cron expr", []dispatch.Target{{Channel: "email"}}, func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt {
		return nil
	})
	t.Cleanup(s.Stop)

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestScheduler_StartWithoutTargets(t *testing.T) {
	var runs atomic.Int32
	s := New("* * * * *", nil, func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt {
		runs.Add(1)
		return nil
	})
	t.Cleanup(s.Stop)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if s.cron != nil {
		t.Error("cron should not be created without targets")
	}
}

func TestScheduler_LastRunReturnsCopy(t *testing.T) {
	s := New("0 9 * * 1", []dispatch.Target{{Channel: "email"}}, func(ctx context.Context, now time.Time, targets []dispatch.Target) []dispatch.Attempt {
		return []dispatch.Attempt{{Channel: "email", Outcome: dispatch.OutcomeSent}}
	})
	s.ctx = context.Background()
	s.fire()

	_, attempts := s.LastRun()
	attempts[0].Outcome = dispatch.OutcomeSendFailed

	_, again := s.LastRun()
	if again[0].Outcome != dispatch.OutcomeSent {
		t.Error("LastRun exposed internal attempt slice")
	}
}
