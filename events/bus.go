// Package events carries typed notifications between the registry, the
// inbox and the components that feed them.
package events

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jaliph/residence-companion/models"
)

// LocalOrigin marks events raised inside the process. It is always allowed.
const LocalOrigin = "local"

// Kind names an event type
type Kind string

const (
	KindAddCompanion     Kind = "ADD_COMPANION"
	KindAddFriendRequest Kind = "ADD_FRIEND_REQUEST"
)

var (
	ErrOriginNotAllowed = errors.New("event origin not allowed")
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrDeliveryFailed   = errors.New("event delivery failed")
)

// Event is implemented by every event type
type Event interface {
	Kind() Kind
	validate() error
}

// AddCompanion asks the registry to add a companion
type AddCompanion struct {
	Companion models.Companion
}

func (AddCompanion) Kind() Kind { return KindAddCompanion }

func (e AddCompanion) validate() error {
	if strings.TrimSpace(e.Companion.ID) == "" || strings.TrimSpace(e.Companion.Name) == "" {
		return fmt.Errorf("%w: companion requires id and name", ErrInvalidPayload)
	}
	return nil
}

// AddFriendRequest delivers an inbound friend request to the inbox
type AddFriendRequest struct {
	Request models.FriendRequest
}

func (AddFriendRequest) Kind() Kind { return KindAddFriendRequest }

func (e AddFriendRequest) validate() error {
	if strings.TrimSpace(e.Request.ID) == "" || strings.TrimSpace(e.Request.Name) == "" {
		return fmt.Errorf("%w: request requires id and name", ErrInvalidPayload)
	}
	return nil
}

// Handler receives published events. A non-nil error is reported back to
// the publisher.
type Handler func(Event) error

// Bus delivers events synchronously to its subscribers in subscription
// order. Publishers outside the process must use an allowed origin.
type Bus struct {
	origins map[string]bool

	mu   sync.RWMutex
	next int
	subs map[int]Handler
}

// NewBus creates a bus accepting the given origins in addition to LocalOrigin
func NewBus(allowedOrigins []string) *Bus {
	origins := map[string]bool{LocalOrigin: true}
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return &Bus{origins: origins, subs: make(map[int]Handler)}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// OriginAllowed reports whether events from origin are accepted
func (b *Bus) OriginAllowed(origin string) bool {
	return b.origins[origin]
}

// Publish validates e and hands it to every subscriber. Every subscriber runs
// even when an earlier one fails; their errors are joined under
// ErrDeliveryFailed.
func (b *Bus) Publish(origin string, e Event) error {
	if !b.OriginAllowed(origin) {
		return fmt.Errorf("%w: %q", ErrOriginNotAllowed, origin)
	}
	if e == nil {
		return ErrInvalidPayload
	}
	if err := e.validate(); err != nil {
		return err
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(errs...))
	}
	return nil
}
