package database

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaliph/residence-companion/models"
)

func uniqueName(t *testing.T) string {
	return strings.ReplaceAll(t.Name(), "/", "_") + "_" + uuid.NewString()
}

func newTestGormDB(t *testing.T) *GormDB {
	t.Helper()
	db, err := NewGormDB(uniqueName(t), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(uniqueName(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCompanionsListNewestFirst(t *testing.T) {
	db := newTestGormDB(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.InsertCompanion(&models.Companion{ID: id, Name: id, DocumentTypeLabel: "Passport", Status: models.CompanionApproved}))
	}

	list, err := db.ListCompanions()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "a", list[2].ID)
}

func TestCompanionDuplicateIDRejected(t *testing.T) {
	db := newTestGormDB(t)
	c := models.Companion{ID: "dup", Name: "x", DocumentTypeLabel: "Passport", Status: models.CompanionPending}
	require.NoError(t, db.InsertCompanion(&c))

	again := models.Companion{ID: "dup", Name: "y", DocumentTypeLabel: "Passport", Status: models.CompanionPending}
	assert.Error(t, db.InsertCompanion(&again))
}

func TestCompanionGetUpdateDelete(t *testing.T) {
	db := newTestGormDB(t)
	require.NoError(t, db.InsertCompanion(&models.Companion{ID: "c1", Name: "Zhang Wei", DocumentTypeLabel: "Mainland China ID", Status: models.CompanionPending}))

	got, err := db.GetCompanion("c1")
	require.NoError(t, err)
	assert.Equal(t, "Zhang Wei", got.Name)

	require.NoError(t, db.UpdateCompanionStatus("c1", models.CompanionRejected))
	n, err := db.CountCompanionsByStatus(models.CompanionRejected)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, db.UpdateCompanionStatus("missing", models.CompanionRejected), ErrNotFound)

	removed, err := db.DeleteCompanion("c1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = db.DeleteCompanion("c1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, removed)

	_, err = db.GetCompanion("c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestsReplaceAndList(t *testing.T) {
	db := newTestDatabase(t)

	requests := []models.FriendRequest{
		{ID: "2", Name: "B", Description: "Passport: *****567", Status: models.RequestPending, CreatedAt: 100},
		{ID: "1", Name: "A", Description: "Hong Kong ID: *****56(7)", Status: models.RequestRequested, CreatedAt: 200, Leaving: true},
	}
	require.NoError(t, db.ReplaceRequests(requests))

	list, err := db.ListRequests()
	require.NoError(t, err)
	assert.Equal(t, requests, list)

	require.NoError(t, db.ReplaceRequests(requests[:1]))
	list, err = db.ListRequests()
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.False(t, db.RequestExists("1"))
	assert.True(t, db.RequestExists("2"))
}

func TestRequestUpdates(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.ReplaceRequests([]models.FriendRequest{
		{ID: "r1", Name: "A", Status: models.RequestRequested, CreatedAt: 1},
	}))

	require.NoError(t, db.UpdateRequestStatus("r1", models.RequestRejected))
	require.NoError(t, db.SetRequestLeaving("r1", true))
	require.NoError(t, db.UpdateRequestTimestamps(map[string]string{"r1": "3 days ago"}))

	r, err := db.GetRequest("r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, r.Status)
	assert.True(t, r.Leaving)
	assert.Equal(t, "3 days ago", r.Timestamp)

	require.NoError(t, db.SetRequestLeaving("r1", false))
	r, err = db.GetRequest("r1")
	require.NoError(t, err)
	assert.False(t, r.Leaving)

	n, err := db.CountRequestsByStatus(models.RequestRejected)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, db.UpdateRequestStatus("missing", models.RequestRejected), ErrNotFound)

	require.NoError(t, db.DeleteRequest("r1"))
	require.NoError(t, db.DeleteRequest("r1"))
	_, err = db.GetRequest("r1")
	assert.ErrorIs(t, err, ErrNotFound)
}
