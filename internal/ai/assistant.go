// Package ai defines the optional swipe advisor. The advisor never decides a
// swipe or a match; it only annotates deck cards.
package ai

import (
	"context"

	"github.com/spigell/swipe-sync/internal/session"
)

type Assessment struct {
	Fit     bool
	Score   float64
	Reason  string
	Message string
	Raw     string
	// Error is set when the provider failed and the card was kept unassessed.
	Error string
}

// Target is the profile being judged: a job offer for candidates or a
// candidate profile for recruiters. Payload must be JSON-marshalable.
type Target struct {
	ID      string
	Kind    string
	Payload any
}

type Matcher interface {
	Evaluate(ctx context.Context, viewer *session.User, target Target) (*Assessment, error)
}
