package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Allow(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2025, 10, 15, 10, 0, 0, 0, time.UTC)
	interval := 5 * time.Minute

	assert.True(t, tr.Allow("wellbeing", now, interval), "first call always allowed")
	assert.False(t, tr.Allow("wellbeing", now.Add(time.Minute), interval))
	assert.True(t, tr.Allow("productivity", now.Add(time.Minute), interval), "keys are independent")
	assert.True(t, tr.Allow("wellbeing", now.Add(interval), interval))

	last, ok := tr.Last("wellbeing")
	assert.True(t, ok)
	assert.Equal(t, now.Add(interval), last)
}

func TestTracker_ActiveDoesNotRecord(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2025, 10, 15, 10, 0, 0, 0, time.UTC)

	assert.False(t, tr.Active("workflow", now, time.Minute))
	_, ok := tr.Last("workflow")
	assert.False(t, ok)

	tr.Record("workflow", now)
	assert.True(t, tr.Active("workflow", now.Add(30*time.Second), time.Minute))
	assert.False(t, tr.Active("workflow", now.Add(time.Minute), time.Minute))
}

func TestTracker_SnapshotRestorePrune(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2025, 10, 15, 10, 0, 0, 0, time.UTC)
	tr.Record("a", now)
	tr.Record("b", now.Add(10*time.Minute))

	snap := tr.Snapshot()
	restored := NewTracker()
	restored.Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())

	removed := restored.Prune(now.Add(12*time.Minute), 5*time.Minute)
	assert.Equal(t, 1, removed)
	_, ok := restored.Last("a")
	assert.False(t, ok)
	_, ok = restored.Last("b")
	assert.True(t, ok)
}
