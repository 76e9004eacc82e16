package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/report"
	"github.com/huntingdonterrace/issueboard/internal/store"
)

// Target names one delivery: a channel and an optional recipient override
// (empty means the channel's configured default).
type Target struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient,omitempty"`
}

// ChannelResolver looks up live sessions by name. *channel.Manager
// satisfies it.
type ChannelResolver interface {
	Get(name string) (channel.Channel, bool)
}

// Reporter is the shared pipeline behind both the weekly firing and
// on-demand delivery: pull all issues, aggregate once, then dispatch the
// same summary serially to each target.
type Reporter struct {
	store      store.Store
	channels   ChannelResolver
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewReporter(st store.Store, channels ChannelResolver) *Reporter {
	return &Reporter{
		store:      st,
		channels:   channels,
		dispatcher: NewDispatcher(),
		now:        time.Now,
	}
}

// Run executes one full pipeline pass with the supplied reference time.
// A store failure aborts before any dispatch: the single returned attempt
// is AggregationFailed and no channel is touched. Targets are delivered
// in order, each with its own outcome; one channel failing does not stop
// the rest.
func (r *Reporter) Run(ctx context.Context, now time.Time, targets []Target) ([]Attempt, *report.Summary) {
	issues, err := r.store.ListIssues(ctx)
	if err != nil {
		log.Printf("[report] issue fetch failed: %v", err)
		return []Attempt{{
			Outcome: OutcomeAggregationFailed,
			At:      now,
			Err:     fmt.Sprintf("fetch issues: %v", err),
		}}, nil
	}

	summary := report.Aggregate(issues, now)
	log.Printf("[report] aggregated: total=%d new=%d resolved=%d",
		summary.TotalIssues, summary.NewIssues, summary.ResolvedIssues)

	attempts := make([]Attempt, 0, len(targets))
	for _, target := range targets {
		attempts = append(attempts, r.deliver(ctx, &summary, target))
	}
	return attempts, &summary
}

// SendNow performs a single on-demand delivery, sharing the pipeline (and
// therefore the per-channel send serialization) with scheduled firings.
func (r *Reporter) SendNow(ctx context.Context, target Target) (Attempt, *report.Summary) {
	attempts, summary := r.Run(ctx, r.now(), []Target{target})
	return attempts[0], summary
}

func (r *Reporter) deliver(ctx context.Context, summary *report.Summary, target Target) Attempt {
	ch, ok := r.channels.Get(target.Channel)
	if !ok {
		return Attempt{
			Channel:   target.Channel,
			Recipient: target.Recipient,
			Outcome:   OutcomeChannelNotReady,
			At:        r.now(),
			Err:       fmt.Sprintf("channel %q not configured", target.Channel),
			Summary:   summary,
		}
	}

	attempt := r.dispatcher.Deliver(ctx, summary, ch, target.Recipient)
	switch attempt.Outcome {
	case OutcomeSent:
		log.Printf("[report] delivered via %s", attempt.Channel)
	default:
		log.Printf("[report] delivery via %s: %s %s", attempt.Channel, attempt.Outcome, attempt.Err)
	}
	return attempt
}
