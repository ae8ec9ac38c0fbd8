package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaliph/residence-companion/database"
	"github.com/jaliph/residence-companion/events"
	"github.com/jaliph/residence-companion/i18n"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/utils"
	"golang.org/x/text/language"
)

const (
	DefaultRemovalDelay    = 900 * time.Millisecond
	DefaultRefreshInterval = 60 * time.Second

	descriptionSeparator = ": "
)

var (
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrMalformedDescription = errors.New("friend request description is malformed")
	ErrRequestLeaving       = errors.New("friend request was already accepted")
)

// InboxOptions tunes an Inbox
type InboxOptions struct {
	Locale          language.Tag
	RemovalDelay    time.Duration
	RefreshInterval time.Duration
	Now             func() time.Time
}

// Inbox holds inbound friend requests, newest first
type Inbox struct {
	db   *database.Database
	bus  *events.Bus
	opts InboxOptions

	mu          sync.Mutex
	removals    map[string]*time.Timer
	ticker      *time.Ticker
	stopChan    chan struct{}
	unsubscribe func()
}

// NewInbox creates an inbox on top of db; accepted requests are announced on bus
func NewInbox(db *database.Database, bus *events.Bus, opts InboxOptions) *Inbox {
	if opts.RemovalDelay <= 0 {
		opts.RemovalDelay = DefaultRemovalDelay
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Locale == language.Und {
		opts.Locale = i18n.English
	}
	return &Inbox{
		db:       db,
		bus:      bus,
		opts:     opts,
		removals: make(map[string]*time.Timer),
	}
}

// Attach makes the inbox receive every request announced on the bus
func (in *Inbox) Attach() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.unsubscribe != nil {
		in.unsubscribe()
	}
	in.unsubscribe = in.bus.Subscribe(func(e events.Event) error {
		evt, ok := e.(events.AddFriendRequest)
		if !ok {
			return nil
		}
		if err := in.Receive(evt.Request); err != nil {
			utils.Logger.Warn("Failed to receive friend request", "id", evt.Request.ID, "error", err)
			return err
		}
		return nil
	})
}

func (in *Inbox) label(createdAt int64, now time.Time) string {
	age := now.Sub(time.UnixMilli(createdAt))
	if age < 0 {
		age = 0
	}
	return i18n.AgeLabel(in.opts.Locale, age)
}

// Merge unions incoming with the stored requests. The first occurrence of an
// id wins, incoming before existing, and the result is ordered newest first.
func (in *Inbox) Merge(incoming []models.FriendRequest) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mergeLocked(incoming)
}

func (in *Inbox) mergeLocked(incoming []models.FriendRequest) error {
	existing, err := in.db.ListRequests()
	if err != nil {
		return err
	}

	now := in.opts.Now()
	seen := make(map[string]bool, len(incoming)+len(existing))
	merged := make([]models.FriendRequest, 0, len(incoming)+len(existing))
	for _, r := range append(append([]models.FriendRequest{}, incoming...), existing...) {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if r.Timestamp == "" {
			r.Timestamp = in.label(r.CreatedAt, now)
		}
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt > merged[j].CreatedAt
	})

	return in.db.ReplaceRequests(merged)
}

// Receive adds a single inbound request. Requests whose id is already in
// the inbox are discarded.
func (in *Inbox) Receive(r models.FriendRequest) error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: request requires id and name", events.ErrInvalidPayload)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.db.RequestExists(r.ID) {
		utils.Logger.Debug("Discarding duplicate friend request", "id", r.ID)
		return nil
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = in.opts.Now().UnixMilli()
	}
	if err := in.mergeLocked([]models.FriendRequest{r}); err != nil {
		return err
	}
	utils.Logger.Info("Friend request received", "id", r.ID, "status", r.Status)
	return nil
}

// List returns the inbox in display order
func (in *Inbox) List() ([]models.FriendRequest, error) {
	return in.db.ListRequests()
}

// PendingCount counts requests waiting for the user's answer
func (in *Inbox) PendingCount() (int, error) {
	return in.db.CountRequestsByStatus(models.RequestRequested)
}

func (in *Inbox) get(id string) (*models.FriendRequest, error) {
	r, err := in.db.GetRequest(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	return r, err
}

// CompanionFromRequest derives the approved companion an accepted request turns into
func CompanionFromRequest(r models.FriendRequest, now time.Time) (models.Companion, error) {
	label, number, ok := strings.Cut(r.Description, descriptionSeparator)
	if !ok {
		return models.Companion{}, fmt.Errorf("%w: %q", ErrMalformedDescription, r.Description)
	}
	return models.Companion{
		ID:                fmt.Sprintf("companion-%d-%s", now.UnixMilli(), r.ID),
		Name:              r.Name,
		DocumentTypeLabel: label,
		IDNumber:          strings.ReplaceAll(number, MaskGlyph, ""),
		Status:            models.CompanionApproved,
		CreatedAt:         now,
	}, nil
}

// Accept turns a request into an approved companion and announces it on the
// bus. The request is removed after the removal delay once a subscriber has
// stored the companion; a failed delivery leaves the request answerable.
func (in *Inbox) Accept(id string) (models.Companion, error) {
	in.mu.Lock()
	r, err := in.get(id)
	if err != nil {
		in.mu.Unlock()
		return models.Companion{}, err
	}
	if r.Leaving {
		in.mu.Unlock()
		return models.Companion{}, ErrRequestLeaving
	}
	companion, err := CompanionFromRequest(*r, in.opts.Now())
	if err != nil {
		in.mu.Unlock()
		return models.Companion{}, err
	}
	if err := in.db.SetRequestLeaving(id, true); err != nil {
		in.mu.Unlock()
		return models.Companion{}, err
	}
	in.mu.Unlock()

	if err := in.bus.Publish(events.LocalOrigin, events.AddCompanion{Companion: companion}); err != nil {
		in.mu.Lock()
		if rerr := in.db.SetRequestLeaving(id, false); rerr != nil {
			utils.Logger.Warn("Failed to restore friend request", "id", id, "error", rerr)
		}
		in.mu.Unlock()
		return models.Companion{}, fmt.Errorf("failed to announce companion: %w", err)
	}

	in.mu.Lock()
	in.scheduleRemovalLocked(id)
	in.mu.Unlock()
	utils.Logger.Info("Friend request accepted", "id", id, "companion", companion.ID)
	return companion, nil
}

func (in *Inbox) scheduleRemovalLocked(id string) {
	if t, ok := in.removals[id]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(in.opts.RemovalDelay, func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		if in.removals[id] != timer {
			return
		}
		delete(in.removals, id)
		if err := in.db.DeleteRequest(id); err != nil {
			utils.Logger.Warn("Failed to remove accepted request", "id", id, "error", err)
		}
	})
	in.removals[id] = timer
}

// Reject marks a request as rejected; it stays in the inbox
func (in *Inbox) Reject(id string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	r, err := in.get(id)
	if err != nil {
		return err
	}
	if r.Leaving {
		return ErrRequestLeaving
	}
	if err := in.db.UpdateRequestStatus(id, models.RequestRejected); err != nil {
		return err
	}
	utils.Logger.Info("Friend request rejected", "id", id)
	return nil
}

// RefreshTimestamps recomputes every age label against now
func (in *Inbox) RefreshTimestamps(now time.Time) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	requests, err := in.db.ListRequests()
	if err != nil {
		return err
	}
	labels := make(map[string]string, len(requests))
	for _, r := range requests {
		labels[r.ID] = in.label(r.CreatedAt, now)
	}
	return in.db.UpdateRequestTimestamps(labels)
}

// Start refreshes the age labels periodically until Stop is called
func (in *Inbox) Start() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ticker != nil {
		return
	}
	in.ticker = time.NewTicker(in.opts.RefreshInterval)
	in.stopChan = make(chan struct{})
	ticker, stop := in.ticker, in.stopChan

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := in.RefreshTimestamps(in.opts.Now()); err != nil {
					utils.Logger.Warn("Failed to refresh request timestamps", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the refresh ticker, cancels pending removals and detaches from the bus
func (in *Inbox) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ticker != nil {
		in.ticker.Stop()
		close(in.stopChan)
		in.ticker = nil
	}
	for id, t := range in.removals {
		t.Stop()
		delete(in.removals, id)
	}
	if in.unsubscribe != nil {
		in.unsubscribe()
		in.unsubscribe = nil
	}
}

// SeedRequests are the requests shown on a fresh install, relative to now
func SeedRequests(now time.Time) []models.FriendRequest {
	at := func(d time.Duration) int64 { return now.Add(-d).UnixMilli() }
	return []models.FriendRequest{
		{ID: "6", Name: "Zhang xiao", Description: "Mainland China ID: *****381", Status: models.RequestRequested, CreatedAt: at(0)},
		{ID: "5", Name: "Zhang Wei", Description: "Mainland China ID: *****789", Status: models.RequestRequested, CreatedAt: at(0)},
		{ID: "1", Name: "John Smith", Description: "Passport: *****567", Status: models.RequestPending, CreatedAt: at(2 * time.Hour)},
		{ID: "4", Name: "Chen anjie", Description: "Hong Kong ID: *****56(7)", Status: models.RequestExpired, CreatedAt: at(24 * time.Hour)},
		{ID: "2", Name: "V_cgliu", Description: "Mainland China ID: *****234", Status: models.RequestExpired, CreatedAt: at(25 * time.Hour)},
		{ID: "3", Name: "Chen Xiaoming1", Description: "Hong Kong ID: *****56(7)", Status: models.RequestExpired, CreatedAt: at(72 * time.Hour)},
	}
}
