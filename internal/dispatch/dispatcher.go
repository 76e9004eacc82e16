package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/report"
)

// Dispatcher turns a summary into exactly one send attempt on a channel.
// It never retries; retry policy belongs to whoever reads the Attempt.
type Dispatcher struct {
	now func() time.Time
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{now: time.Now}
}

// Deliver fails fast on a non-ready channel: no rendering, no transport
// call, no partial side effects. Otherwise it renders the summary in the
// channel's format and performs the single send, mapping the result
// verbatim onto the attempt outcome.
func (d *Dispatcher) Deliver(ctx context.Context, summary *report.Summary, ch channel.Channel, recipient string) Attempt {
	attempt := Attempt{
		Channel:   ch.Name(),
		Recipient: recipient,
		At:        d.now(),
		Summary:   summary,
	}

	if !ch.Ready() {
		attempt.Outcome = OutcomeChannelNotReady
		return attempt
	}

	msg := Render(summary, ch.Format())
	if err := ch.Send(ctx, recipient, msg); err != nil {
		if errors.Is(err, channel.ErrNotReady) {
			attempt.Outcome = OutcomeChannelNotReady
		} else {
			attempt.Outcome = OutcomeSendFailed
			attempt.Err = err.Error()
		}
		return attempt
	}

	attempt.Outcome = OutcomeSent
	return attempt
}
