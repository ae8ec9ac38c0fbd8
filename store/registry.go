package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaliph/residence-companion/database"
	"github.com/jaliph/residence-companion/documents"
	"github.com/jaliph/residence-companion/events"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/utils"
)

// MaskGlyph replaces hidden identifier characters
const MaskGlyph = "*"

var ErrCompanionNotFound = errors.New("companion not found")

// MaskIdentifier hides all but the last three characters of an identifier.
// Identifiers shorter than three characters are masked completely.
func MaskIdentifier(raw string) string {
	r := []rune(raw)
	if len(r) < 3 {
		return strings.Repeat(MaskGlyph, len(r))
	}
	return strings.Repeat(MaskGlyph, len(r)-3) + string(r[len(r)-3:])
}

// Registry is the ordered collection of registered companions, newest first
type Registry struct {
	db  *database.GormDB
	now func() time.Time

	mu          sync.Mutex
	lastID      int64
	unsubscribe func()
}

// NewRegistry creates a registry on top of db
func NewRegistry(db *database.GormDB) *Registry {
	return &Registry{db: db, now: time.Now}
}

// Attach makes the registry add every companion announced on bus
func (r *Registry) Attach(bus *events.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.unsubscribe = bus.Subscribe(func(e events.Event) error {
		evt, ok := e.(events.AddCompanion)
		if !ok {
			return nil
		}
		if _, err := r.Add(evt.Companion); err != nil {
			utils.Logger.Warn("Failed to add announced companion", "id", evt.Companion.ID, "error", err)
			return err
		}
		return nil
	})
}

// Detach stops listening to the bus
func (r *Registry) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}

// nextID derives an id from the creation time, bumped to stay unique when
// two companions are created within the same millisecond
func (r *Registry) nextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.now().UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return strconv.FormatInt(id, 10)
}

// Add places a companion at the front of the collection
func (r *Registry) Add(c models.Companion) (models.Companion, error) {
	if c.ID == "" {
		c.ID = r.nextID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	c.Seq = 0
	if err := r.db.InsertCompanion(&c); err != nil {
		return models.Companion{}, err
	}
	utils.Logger.Info("Companion added", "id", c.ID, "status", c.Status)
	return c, nil
}

// AddFromResult registers the outcome of a finished wizard session
func (r *Registry) AddFromResult(res models.RegistrationResult) (models.Companion, error) {
	return r.Add(CompanionFromResult(res))
}

// CompanionFromResult converts a wizard result into a registry record
func CompanionFromResult(res models.RegistrationResult) models.Companion {
	status := models.CompanionApproved
	if res.NeedManualReview {
		status = models.CompanionPending
	}
	return models.Companion{
		Name:              res.Name,
		DocumentTypeLabel: documents.Label(res.DocumentType),
		IDNumber:          res.IDNumber,
		Status:            status,
	}
}

// Remove deletes a companion; removing an unknown id is a no-op
func (r *Registry) Remove(id string) error {
	n, err := r.db.DeleteCompanion(id)
	if err != nil {
		return err
	}
	if n > 0 {
		utils.Logger.Info("Companion removed", "id", id)
	}
	return nil
}

// Get returns one companion
func (r *Registry) Get(id string) (models.Companion, error) {
	c, err := r.db.GetCompanion(id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Companion{}, ErrCompanionNotFound
	}
	if err != nil {
		return models.Companion{}, err
	}
	return *c, nil
}

// List returns every companion, newest first
func (r *Registry) List() ([]models.Companion, error) {
	return r.db.ListCompanions()
}

// HasPending reports whether any companion waits for manual review
func (r *Registry) HasPending() (bool, error) {
	return r.hasStatus(models.CompanionPending)
}

// HasApproved reports whether any companion has been approved
func (r *Registry) HasApproved() (bool, error) {
	return r.hasStatus(models.CompanionApproved)
}

func (r *Registry) hasStatus(status models.CompanionStatus) (bool, error) {
	n, err := r.db.CountCompanionsByStatus(status)
	if err != nil {
		return false, fmt.Errorf("failed to check %s companions: %w", status, err)
	}
	return n > 0, nil
}

// SeedCompanions are the companions shown on a fresh install, in display
// order. Identifiers are raw; they are masked when displayed.
func SeedCompanions() []models.Companion {
	return []models.Companion{
		{ID: "1", Name: "John Smith", DocumentTypeLabel: "Passport", IDNumber: "E8820567", Status: models.CompanionApproved},
		{ID: "2", Name: "Chen Xiaoming", DocumentTypeLabel: "Mainland China ID", IDNumber: "G1100234", Status: models.CompanionPending},
		{ID: "3", Name: "Wong Mei Ling", DocumentTypeLabel: "Hong Kong ID", IDNumber: "A5556(7)", Status: models.CompanionRejected},
		{ID: "4", Name: "Zhang Wei", DocumentTypeLabel: "Mainland China ID", IDNumber: "G2210789", Status: models.CompanionApproved},
		{ID: "5", Name: "Sarah Johnson", DocumentTypeLabel: "Passport", IDNumber: "K9930321", Status: models.CompanionPending},
	}
}

// Seed loads companions so that List returns them in the given order
func (r *Registry) Seed(companions []models.Companion) error {
	for i := len(companions) - 1; i >= 0; i-- {
		if _, err := r.Add(companions[i]); err != nil {
			return fmt.Errorf("failed to seed companion %s: %w", companions[i].ID, err)
		}
	}
	return nil
}
