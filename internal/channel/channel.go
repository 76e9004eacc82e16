package channel

import (
	"context"
	"errors"
)

// ErrNotReady is returned by Send when the session cannot deliver yet.
// It is a normal outcome, not a fault: the caller decides whether to
// surface it, re-pair, or try again later.
var ErrNotReady = errors.New("channel not ready")

// Format tells the dispatcher which rendering a channel expects.
type Format int

const (
	FormatText Format = iota
	FormatHTML
)

// Message is one formatted report ready for delivery. Messaging channels
// ignore the subject.
type Message struct {
	Subject string
	Body    string
}

// SessionState is the lifecycle position of a delivery session. Email and
// telegram sessions jump straight to Ready; the whatsapp session walks the
// full pairing machine.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StatePairing
	StateReady
	StateDisconnected
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePairing:
		return "pairing"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Channel is a delivery medium for weekly reports. Implementations own
// their session lifecycle; callers only ever Start, query readiness, Send
// and Stop. Ready is a pure state read and never blocks. Send performs at
// most one transport attempt and serializes concurrent callers, so a
// scheduled firing and an operator-triggered delivery can never overlap
// on the wire.
type Channel interface {
	Name() string
	Format() Format
	Start(ctx context.Context) error
	Stop() error
	Ready() bool
	State() SessionState
	Send(ctx context.Context, recipient string, msg Message) error
}
