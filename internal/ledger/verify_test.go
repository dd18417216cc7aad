package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalhq/vorpal/internal/models"
)

// buildChain returns n hash-linked events starting from prev.
func buildChain(t *testing.T, n int, prev string) []models.AuditEvent {
	t.Helper()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	events := make([]models.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := models.AuditEvent{
			ID:           fmt.Sprintf("ev-%d", i),
			EventType:    "system.updated",
			Actor:        models.Actor{ID: "tester", Type: models.ActorTypeUser},
			Action:       "update",
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			PreviousHash: prev,
		}
		hash, err := ComputeEventHash(&ev)
		require.NoError(t, err)
		ev.EventHash = hash
		prev = hash
		events = append(events, ev)
	}
	return events
}

func TestVerifyEventsEmpty(t *testing.T) {
	report := VerifyEvents(nil)
	assert.True(t, report.Verified)
	assert.Equal(t, "no events to verify", report.Message)
}

func TestVerifyEventsIntactChain(t *testing.T) {
	events := buildChain(t, 6, "")
	report := VerifyEvents(events)
	assert.True(t, report.Verified)
	assert.Equal(t, 6, report.ValidEvents)
	assert.Nil(t, report.FirstInvalidEventID)
}

func TestVerifyEventsSubRangeSkipsFirstLink(t *testing.T) {
	// Verifying a slice out of the middle of a longer chain must not flag
	// the first supplied event just because its predecessor is absent.
	events := buildChain(t, 6, "")
	report := VerifyEvents(events[2:5])
	assert.True(t, report.Verified)
	assert.Equal(t, 3, report.TotalEvents)
}

func TestVerifyEventsHashMismatch(t *testing.T) {
	events := buildChain(t, 4, "")
	events[1].Action = "forged"

	report := VerifyEvents(events)
	assert.False(t, report.Verified)
	assert.Equal(t, 1, report.InvalidEvents)
	require.NotNil(t, report.FirstInvalidEventID)
	assert.Equal(t, "ev-1", *report.FirstInvalidEventID)
	assert.Equal(t, "chain integrity compromised: 1 invalid events", report.Message)
}

func TestVerifyEventsDiscontinuity(t *testing.T) {
	front := buildChain(t, 2, "")
	// A second segment that never linked to the first.
	back := buildChain(t, 2, "deadbeef")
	back[0].ID = "ev-orphan"
	rehashed, err := ComputeEventHash(&back[0])
	require.NoError(t, err)
	back[0].EventHash = rehashed

	report := VerifyEvents(append(front, back...))
	assert.False(t, report.Verified)
	require.NotNil(t, report.FirstInvalidEventID)
	assert.Equal(t, "ev-orphan", *report.FirstInvalidEventID)
}

func TestVerifyEventsCountsAllInvalid(t *testing.T) {
	// Verification runs to completion over a fully compromised chain.
	events := buildChain(t, 5, "")
	for i := range events {
		events[i].Details = map[string]interface{}{"forged": i}
	}
	report := VerifyEvents(events)
	assert.False(t, report.Verified)
	assert.Equal(t, 5, report.InvalidEvents)
	assert.Equal(t, 0, report.ValidEvents)
}

func TestComputeEventHashIgnoresTransportMetadata(t *testing.T) {
	// ip/user agent/request id are attribution, not chain content.
	ev := buildChain(t, 1, "")[0]
	withMeta := ev
	withMeta.IPAddress = "10.0.0.1"
	withMeta.UserAgent = "curl/8"
	withMeta.RequestID = "req-1"

	h1, err := ComputeEventHash(&ev)
	require.NoError(t, err)
	h2, err := ComputeEventHash(&withMeta)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeEventHashCoversPreviousHash(t *testing.T) {
	ev := buildChain(t, 1, "")[0]
	linked := ev
	linked.PreviousHash = "abc123"

	h1, err := ComputeEventHash(&ev)
	require.NoError(t, err)
	h2, err := ComputeEventHash(&linked)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
