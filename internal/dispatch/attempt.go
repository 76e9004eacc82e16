package dispatch

import (
	"time"

	"github.com/huntingdonterrace/issueboard/internal/report"
)

// Outcome classifies one delivery attempt. These are results, not errors:
// every pipeline run produces attempts, and callers decide presentation.
type Outcome string

const (
	OutcomeSent              Outcome = "sent"
	OutcomeChannelNotReady   Outcome = "channel-not-ready"
	OutcomeSendFailed        Outcome = "send-failed"
	OutcomeAggregationFailed Outcome = "aggregation-failed"
)

// Attempt records one externally visible delivery try. Attempts are
// logged and returned to the caller; nothing persists them.
type Attempt struct {
	Channel   string          `json:"channel,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Outcome   Outcome         `json:"outcome"`
	At        time.Time       `json:"at"`
	Err       string          `json:"error,omitempty"`
	Summary   *report.Summary `json:"-"`
}
