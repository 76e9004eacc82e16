package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/huntingdonterrace/issueboard/internal/channel"
	"github.com/huntingdonterrace/issueboard/internal/store"
)

type fakeStore struct {
	issues []store.IssueRecord
	err    error
	calls  int
}

func (f *fakeStore) ListIssues(ctx context.Context) ([]store.IssueRecord, error) {
	f.calls++
	return f.issues, f.err
}

func (f *fakeStore) CreateIssue(ctx context.Context, fields store.IssueFields) (store.IssueRecord, error) {
	return store.IssueRecord{}, errors.New("not implemented")
}

type fakeResolver struct {
	channels map[string]channel.Channel
}

func (f *fakeResolver) Get(name string) (channel.Channel, bool) {
	ch, ok := f.channels[name]
	return ch, ok
}

var reporterNow = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

func reporterIssues() []store.IssueRecord {
	return []store.IssueRecord{
		{ID: "rec1", Unit: "4B", Category: "Plumbing", Status: "Pending", Reported: reporterNow.Add(-24 * time.Hour)},
		{ID: "rec2", Unit: "1A", Category: "Electrical", Status: "Resolved", Reported: reporterNow.Add(-48 * time.Hour)},
		{ID: "rec3", Unit: "2C", Category: "Plumbing", Status: "Pending", Reported: reporterNow.Add(-30 * 24 * time.Hour)},
	}
}

func TestReporter_Run(t *testing.T) {
	wa := &fakeChannel{name: "whatsapp", format: channel.FormatText, ready: true}
	em := &fakeChannel{name: "email", format: channel.FormatHTML, ready: true}
	r := NewReporter(&fakeStore{issues: reporterIssues()}, &fakeResolver{
		channels: map[string]channel.Channel{"whatsapp": wa, "email": em},
	})

	attempts, summary := r.Run(context.Background(), reporterNow, []Target{
		{Channel: "email", Recipient: "board@example.com"},
		{Channel: "whatsapp"},
	})

	if summary == nil {
		t.Fatal("summary is nil")
	}
	if summary.TotalIssues != 3 || summary.NewIssues != 2 || summary.ResolvedIssues != 1 {
		t.Errorf("summary = total %d new %d resolved %d", summary.TotalIssues, summary.NewIssues, summary.ResolvedIssues)
	}

	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].Channel != "email" || attempts[1].Channel != "whatsapp" {
		t.Errorf("attempt order = %s, %s", attempts[0].Channel, attempts[1].Channel)
	}
	for _, a := range attempts {
		if a.Outcome != OutcomeSent {
			t.Errorf("%s outcome = %s, want sent", a.Channel, a.Outcome)
		}
	}
	if em.sends != 1 || wa.sends != 1 {
		t.Errorf("sends = email %d, whatsapp %d", em.sends, wa.sends)
	}
}

func TestReporter_StoreFailureAbortsBeforeDispatch(t *testing.T) {
	wa := &fakeChannel{name: "whatsapp", format: channel.FormatText, ready: true}
	r := NewReporter(&fakeStore{err: errors.New("airtable: 503")}, &fakeResolver{
		channels: map[string]channel.Channel{"whatsapp": wa},
	})

	attempts, summary := r.Run(context.Background(), reporterNow, []Target{{Channel: "whatsapp"}})

	if summary != nil {
		t.Error("summary should be nil on fetch failure")
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if attempts[0].Outcome != OutcomeAggregationFailed {
		t.Errorf("Outcome = %s, want aggregation-failed", attempts[0].Outcome)
	}
	if !strings.Contains(attempts[0].Err, "airtable: 503") {
		t.Errorf("Err = %q, want store error preserved", attempts[0].Err)
	}
	if wa.sends != 0 {
		t.Errorf("sends = %d, want 0 when aggregation fails", wa.sends)
	}
}

func TestReporter_OneFailureDoesNotStopTheRest(t *testing.T) {
	down := &fakeChannel{name: "whatsapp", format: channel.FormatText, ready: false}
	up := &fakeChannel{name: "email", format: channel.FormatHTML, ready: true}
	r := NewReporter(&fakeStore{issues: reporterIssues()}, &fakeResolver{
		channels: map[string]channel.Channel{"whatsapp": down, "email": up},
	})

	attempts, _ := r.Run(context.Background(), reporterNow, []Target{
		{Channel: "whatsapp"},
		{Channel: "email", Recipient: "board@example.com"},
	})

	if attempts[0].Outcome != OutcomeChannelNotReady {
		t.Errorf("whatsapp outcome = %s, want channel-not-ready", attempts[0].Outcome)
	}
	if attempts[1].Outcome != OutcomeSent {
		t.Errorf("email outcome = %s, want sent", attempts[1].Outcome)
	}
}

func TestReporter_UnknownChannel(t *testing.T) {
	r := NewReporter(&fakeStore{issues: reporterIssues()}, &fakeResolver{})

	attempts, _ := r.Run(context.Background(), reporterNow, []Target{{Channel: "pager"}})

	if attempts[0].Outcome != OutcomeChannelNotReady {
		t.Errorf("Outcome = %s, want channel-not-ready", attempts[0].Outcome)
	}
	if !strings.Contains(attempts[0].Err, `"pager"`) {
		t.Errorf("Err = %q, want unknown channel named", attempts[0].Err)
	}
}

func TestReporter_AggregatesOncePerRun(t *testing.T) {
	st := &fakeStore{issues: reporterIssues()}
	a := &fakeChannel{name: "email", format: channel.FormatHTML, ready: true}
	b := &fakeChannel{name: "whatsapp", format: channel.FormatText, ready: true}
	r := NewReporter(st, &fakeResolver{
		channels: map[string]channel.Channel{"email": a, "whatsapp": b},
	})

	r.Run(context.Background(), reporterNow, []Target{{Channel: "email"}, {Channel: "whatsapp"}})

	if st.calls != 1 {
		t.Errorf("store queried %d times, want 1", st.calls)
	}
}

func TestReporter_SendNow(t *testing.T) {
	em := &fakeChannel{name: "email", format: channel.FormatHTML, ready: true}
	r := NewReporter(&fakeStore{issues: reporterIssues()}, &fakeResolver{
		channels: map[string]channel.Channel{"email": em},
	})
	r.now = func() time.Time { return reporterNow }

	attempt, summary := r.SendNow(context.Background(), Target{Channel: "email", Recipient: "board@example.com"})

	if attempt.Outcome != OutcomeSent {
		t.Fatalf("Outcome = %s, want sent", attempt.Outcome)
	}
	if summary == nil || summary.NewIssues != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if em.lastTo != "board@example.com" {
		t.Errorf("recipient = %q", em.lastTo)
	}
}
