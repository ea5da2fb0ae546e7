package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(LockAcquired, "trade-job", map[string]any{"fence": 3})

	select {
	case ev := <-ch:
		assert.Equal(t, int64(1), ev.ID)
		assert.Equal(t, LockAcquired, ev.Type)
		assert.Equal(t, "trade-job", ev.Job)
		var data map[string]any
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, 3.0, data["fence"])
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(RunDispatched, "price-job", nil)
	}

	got := h.SnapshotSince(0, "")
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(5), got[2].ID)
	assert.JSONEq(t, `{}`, string(got[0].Data))

	assert.Len(t, h.SnapshotSince(4, ""), 1)
}

func TestSnapshotFiltersByJob(t *testing.T) {
	h := NewHub(10)
	h.Publish(LockAcquired, "a", nil)
	h.Publish(LockAcquired, "b", nil)
	h.Publish(LockLost, "a", nil)

	got := h.SnapshotSince(0, "a")
	require.Len(t, got, 2)
	assert.Equal(t, LockLost, got[1].Type)
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	h.Publish(RunSkipped, "x", nil)
}

func TestNilHubDropsEvents(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() { h.Publish(TickFailed, "x", nil) })
}
