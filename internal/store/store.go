package store

import (
	"context"
	"time"
)

// IssueRecord is one resident-reported issue as held by the external record
// store. The pipeline reads these; creation comes in through the board API.
type IssueRecord struct {
	ID          string
	Unit        string
	Category    string
	Description string
	Status      string
	Notes       string
	Reported    time.Time // "Date Reported" field, zero when unset
	Created     time.Time // record creation time, always set by the store
}

// EffectiveTime is the timestamp used for weekly windowing: the reported
// date when present, else the record creation time.
func (r IssueRecord) EffectiveTime() time.Time {
	if !r.Reported.IsZero() {
		return r.Reported
	}
	return r.Created
}

// IssueFields is the writable subset used when creating a record.
type IssueFields struct {
	Unit        string
	Category    string
	Description string
	Status      string
	Notes       string
	Reported    time.Time
}

type Store interface {
	ListIssues(ctx context.Context) ([]IssueRecord, error)
	CreateIssue(ctx context.Context, fields IssueFields) (IssueRecord, error)
}
