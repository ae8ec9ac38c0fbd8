// Package search finds other residents to add as companions and sends them
// friend requests. Searching is only possible once the user has a verified
// companion on file.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jaliph/residence-companion/events"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/utils"
)

const (
	DefaultLatency = 1000 * time.Millisecond
	DefaultAvatar  = "/avatars/default.jpg"
)

var (
	ErrEmptySearchInput                 = errors.New("search term is empty")
	ErrPendingReviewBlocksAction        = errors.New("companion registration is pending review")
	ErrVerificationRequiredBlocksAction = errors.New("identity verification required")
	ErrInvalidResult                    = errors.New("search result is incomplete")
)

// Verifier reports the review state of the user's own companions
type Verifier interface {
	HasPending() (bool, error)
	HasApproved() (bool, error)
}

var digits = regexp.MustCompile(`[0-9]`)

// Directory is the simulated resident directory
var directory = models.SearchResult{
	Name:     "Chen Xiaoming",
	IDType:   "Mainland China ID",
	IDNumber: "*****463",
	Phone:    "+86 135 8888 8888",
}

// Service answers searches and sends friend requests
type Service struct {
	verifier Verifier
	bus      *events.Bus
	latency  time.Duration
	now      func() time.Time

	mu     sync.Mutex
	lastID int64
}

// NewService creates a search service
func NewService(verifier Verifier, bus *events.Bus, latency time.Duration) *Service {
	if latency < 0 {
		latency = 0
	}
	return &Service{verifier: verifier, bus: bus, latency: latency, now: time.Now}
}

// Gate checks whether the user may search at all
func (s *Service) Gate() error {
	pending, err := s.verifier.HasPending()
	if err != nil {
		return err
	}
	approved, err := s.verifier.HasApproved()
	if err != nil {
		return err
	}
	switch {
	case approved:
		return nil
	case pending:
		return ErrPendingReviewBlocksAction
	default:
		return ErrVerificationRequiredBlocksAction
	}
}

func (s *Service) wait(ctx context.Context) error {
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search looks up a resident by email
func (s *Service) Search(ctx context.Context, term string) (models.SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return models.SearchResult{}, ErrEmptySearchInput
	}
	if err := s.Gate(); err != nil {
		return models.SearchResult{}, err
	}
	if err := s.wait(ctx); err != nil {
		return models.SearchResult{}, err
	}

	utils.Logger.Info("Companion search", "term", term, "found", directory.Name)
	return directory, nil
}

// requestID derives a unique request id from the current time
func (s *Service) requestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return fmt.Sprintf("request-%d", id)
}

// RequestFor builds the friend request sent to a search result. Every
// digit of the identifier is masked.
func RequestFor(result models.SearchResult, id string, now time.Time) models.FriendRequest {
	return models.FriendRequest{
		ID:          id,
		Avatar:      DefaultAvatar,
		Name:        result.Name,
		Description: fmt.Sprintf("%s: %s", result.IDType, digits.ReplaceAllString(result.IDNumber, "*")),
		Status:      models.RequestPending,
		CreatedAt:   now.UnixMilli(),
	}
}

// SendRequest sends a friend request to a search result and announces it on the bus
func (s *Service) SendRequest(ctx context.Context, result models.SearchResult) (models.FriendRequest, error) {
	if strings.TrimSpace(result.Name) == "" || strings.TrimSpace(result.IDType) == "" {
		return models.FriendRequest{}, ErrInvalidResult
	}
	if err := s.wait(ctx); err != nil {
		return models.FriendRequest{}, err
	}

	req := RequestFor(result, s.requestID(), s.now())
	if err := s.bus.Publish(events.LocalOrigin, events.AddFriendRequest{Request: req}); err != nil {
		return models.FriendRequest{}, fmt.Errorf("failed to announce friend request: %w", err)
	}
	utils.Logger.Info("Friend request sent", "id", req.ID, "name", req.Name)
	return req, nil
}
