// Package review is the submission boundary of the registration wizard.
// The only implementation today is a mock that never leaves the process.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaliph/residence-companion/media"
	"github.com/jaliph/residence-companion/utils"
)

// DefaultLatency is the artificial delay of the mock service
const DefaultLatency = 1000 * time.Millisecond

// Action is the terminal button the user pressed on the review step
type Action string

const (
	ActionSubmit       Action = "submit"
	ActionManualReview Action = "manual_review"
)

// ParseAction validates an action name
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionSubmit, ActionManualReview:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Disposition is the review outcome of a registration
type Disposition string

const (
	AutoApproved        Disposition = "auto_approved"
	PendingManualReview Disposition = "pending_manual_review"
)

// NeedsManualReview reports whether a human has to approve the registration
func (d Disposition) NeedsManualReview() bool {
	return d == PendingManualReview
}

var ErrUnknownAction = errors.New("unknown review action")

// Request is everything the wizard collected for one registration
type Request struct {
	SessionToken  string
	Action        Action
	DocumentType  string
	DocumentImage media.CapturedImage
	LivenessImage media.CapturedImage
}

// Service submits a registration for review
type Service interface {
	Submit(ctx context.Context, req Request) (Disposition, error)
}

// MockService waits a fixed latency and always succeeds
type MockService struct {
	Latency time.Duration
}

// NewMockService creates a mock with the given latency
func NewMockService(latency time.Duration) *MockService {
	return &MockService{Latency: latency}
}

// Submit decides the disposition from the requested action
func (m *MockService) Submit(ctx context.Context, req Request) (Disposition, error) {
	disposition, err := dispositionFor(req.Action)
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(m.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	utils.Logger.Info("Registration submitted", "session", req.SessionToken, "document_type", req.DocumentType, "disposition", disposition)
	return disposition, nil
}

func dispositionFor(a Action) (Disposition, error) {
	switch a {
	case ActionSubmit:
		return AutoApproved, nil
	case ActionManualReview:
		return PendingManualReview, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, a)
}
