package presence

import (
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachDetach_SingleHandle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	h, rec, wentOnline := tr.Attach("x@example.com", "x")
	assert.True(t, wentOnline)
	assert.True(t, rec.Online)
	assert.Equal(t, clock.Now(), rec.LastChanged)

	rec, wentOffline := tr.Detach(h)
	assert.True(t, wentOffline)
	assert.False(t, rec.Online)
	assert.False(t, tr.Online("x@example.com"))
}

func TestTwoTabs_OfflineOnlyAfterLastHandle(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())

	h1, _, wentOnline := tr.Attach("x@example.com", "x")
	require.True(t, wentOnline)

	h2, _, wentOnline := tr.Attach("x@example.com", "x")
	assert.False(t, wentOnline, "second tab must not re-announce online")

	_, wentOffline := tr.Detach(h1)
	assert.False(t, wentOffline, "first close leaves identity online")
	assert.True(t, tr.Online("x@example.com"))

	_, wentOffline = tr.Detach(h2)
	assert.True(t, wentOffline, "last close goes offline exactly once")
	assert.False(t, tr.Online("x@example.com"))
}

func TestDetach_Idempotent(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())

	h, _, _ := tr.Attach("x@example.com", "x")
	_, wentOffline := tr.Detach(h)
	require.True(t, wentOffline)

	_, wentOffline = tr.Detach(h)
	assert.False(t, wentOffline, "second detach of same handle has no effect")
}

func TestSnapshot_ExcludesSelfAndOffline(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())

	tr.Attach("a@example.com", "a")
	tr.Attach("b@example.com", "b")
	h, _, _ := tr.Attach("c@example.com", "c")
	tr.Detach(h)

	snap := tr.Snapshot("a@example.com")
	require.Len(t, snap, 1)
	assert.Equal(t, "b@example.com", snap[0].Identity)
}

func TestOfflineRecordRetained(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	h, _, _ := tr.Attach("x@example.com", "x")
	rec, _ := tr.Detach(h)
	assert.False(t, rec.Online)
	assert.Equal(t, clock.Now(), rec.LastChanged)

	// re-attach flips the same record back online
	_, rec, wentOnline := tr.Attach("x@example.com", "x")
	assert.True(t, wentOnline)
	assert.True(t, rec.Online)
}

func TestConcurrentAttachDetach_NoLostUpdates(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h, _, _ := tr.Attach("shared@example.com", "shared")
				tr.Detach(h)
			}
		}()
	}
	wg.Wait()

	assert.False(t, tr.Online("shared@example.com"))
	assert.Empty(t, tr.Snapshot(""))
}
