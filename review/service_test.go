package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockServiceDisposition(t *testing.T) {
	svc := NewMockService(time.Millisecond)

	d, err := svc.Submit(context.Background(), Request{Action: ActionSubmit, DocumentType: "passport"})
	require.NoError(t, err)
	assert.Equal(t, AutoApproved, d)
	assert.False(t, d.NeedsManualReview())

	d, err = svc.Submit(context.Background(), Request{Action: ActionManualReview})
	require.NoError(t, err)
	assert.Equal(t, PendingManualReview, d)
	assert.True(t, d.NeedsManualReview())
}

func TestMockServiceWaitsLatency(t *testing.T) {
	svc := NewMockService(30 * time.Millisecond)
	start := time.Now()
	_, err := svc.Submit(context.Background(), Request{Action: ActionSubmit})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMockServiceRespectsContext(t *testing.T) {
	svc := NewMockService(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Submit(ctx, Request{Action: ActionSubmit})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnknownAction(t *testing.T) {
	_, err := NewMockService(0).Submit(context.Background(), Request{Action: "approve"})
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = ParseAction("approve")
	assert.ErrorIs(t, err, ErrUnknownAction)

	a, err := ParseAction("manual_review")
	require.NoError(t, err)
	assert.Equal(t, ActionManualReview, a)
}

func TestDefaultLatency(t *testing.T) {
	assert.Equal(t, time.Second, DefaultLatency)
}
