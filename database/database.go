package database

import (
	"database/sql"
	"fmt"

	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/utils"
	_ "modernc.org/sqlite"
)

// Database holds the friend-request inbox in an in-memory SQLite database
type Database struct {
	db *sql.DB
}

// NewDatabase opens the in-memory inbox database called name
func NewDatabase(name string) (*Database, error) {
	db, err := sql.Open("sqlite", memoryDSN(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open inbox database: %w", err)
	}
	db.SetMaxOpenConns(1)

	database := &Database{db: db}
	if err := database.init(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

// init initializes the database tables
func (d *Database) init() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS friend_requests (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			timestamp TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			leaving INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create friend_requests table: %w", err)
	}

	utils.Logger.Debug("Inbox database initialized")
	return nil
}

const requestColumns = "id, avatar, name, description, status, timestamp, created_at, leaving"

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.FriendRequest, error) {
	var r models.FriendRequest
	var status string
	var leaving int
	if err := row.Scan(&r.ID, &r.Avatar, &r.Name, &r.Description, &status, &r.Timestamp, &r.CreatedAt, &leaving); err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	r.Leaving = leaving != 0
	return &r, nil
}

// ReplaceRequests rewrites the whole inbox in the given order
func (d *Database) ReplaceRequests(requests []models.FriendRequest) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin inbox transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM friend_requests"); err != nil {
		return fmt.Errorf("failed to clear inbox: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO friend_requests (` + requestColumns + `, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare inbox insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range requests {
		if _, err := stmt.Exec(r.ID, r.Avatar, r.Name, r.Description, string(r.Status), r.Timestamp, r.CreatedAt, boolToInt(r.Leaving), i); err != nil {
			return fmt.Errorf("failed to store friend request %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListRequests returns the inbox in display order
func (d *Database) ListRequests() ([]models.FriendRequest, error) {
	rows, err := d.db.Query("SELECT " + requestColumns + " FROM friend_requests ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query friend_requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// GetRequest retrieves a friend request by id
func (d *Database) GetRequest(id string) (*models.FriendRequest, error) {
	r, err := scanRequest(d.db.QueryRow("SELECT "+requestColumns+" FROM friend_requests WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend request: %w", err)
	}
	return r, nil
}

// RequestExists checks whether a request id is present
func (d *Database) RequestExists(id string) bool {
	var one int
	err := d.db.QueryRow("SELECT 1 FROM friend_requests WHERE id = ?", id).Scan(&one)
	return err == nil
}

// UpdateRequestStatus updates the status of a friend request
func (d *Database) UpdateRequestStatus(id string, status models.RequestStatus) error {
	return d.updateOne("UPDATE friend_requests SET status = ? WHERE id = ?", string(status), id)
}

// SetRequestLeaving flags or unflags a request that is about to be removed
func (d *Database) SetRequestLeaving(id string, leaving bool) error {
	return d.updateOne("UPDATE friend_requests SET leaving = ? WHERE id = ?", boolToInt(leaving), id)
}

// UpdateRequestTimestamps stores freshly rendered timestamp labels
func (d *Database) UpdateRequestTimestamps(labels map[string]string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin inbox transaction: %w", err)
	}
	defer tx.Rollback()

	for id, label := range labels {
		if _, err := tx.Exec("UPDATE friend_requests SET timestamp = ? WHERE id = ?", label, id); err != nil {
			return fmt.Errorf("failed to update timestamp of %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// DeleteRequest removes a friend request; deleting a missing id is not an error
func (d *Database) DeleteRequest(id string) error {
	if _, err := d.db.Exec("DELETE FROM friend_requests WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete friend request: %w", err)
	}
	return nil
}

// CountRequestsByStatus counts requests in the given status
func (d *Database) CountRequestsByStatus(status models.RequestStatus) (int, error) {
	var n int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM friend_requests WHERE status = ?", string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count friend requests: %w", err)
	}
	return n, nil
}

func (d *Database) updateOne(query string, args ...any) error {
	result, err := d.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update friend request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update friend request: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
