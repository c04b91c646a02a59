package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func TestTryAppend_AcceptsLadder(t *testing.T) {
	l := New(120000, 1000)

	a, err := l.TryAppend("alice@example.com", "alice", 121000, testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Sequence)
	assert.Equal(t, int64(121000), a.Amount)

	highest, name, count := l.Highest()
	assert.Equal(t, int64(121000), highest)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 1, count)

	c, err := l.TryAppend("carol@example.com", "carol", 125000, testTime)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Sequence)

	highest, name, count = l.Highest()
	assert.Equal(t, int64(125000), highest)
	assert.Equal(t, "carol", name)
	assert.Equal(t, 2, count)
}

func TestTryAppend_RejectsEqualToHighest(t *testing.T) {
	l := New(120000, 1000)

	_, err := l.TryAppend("alice@example.com", "alice", 121000, testTime)
	require.NoError(t, err)

	_, err = l.TryAppend("bob@example.com", "bob", 121000, testTime)
	require.ErrorIs(t, err, ErrBidTooLow)

	// the losing bid must not have mutated the ledger
	highest, name, count := l.Highest()
	assert.Equal(t, int64(121000), highest)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 1, count)
}

func TestTryAppend_RejectsBelowIncrement(t *testing.T) {
	l := New(120000, 1000)

	_, err := l.TryAppend("alice@example.com", "alice", 121000, testTime)
	require.NoError(t, err)

	_, err = l.TryAppend("bob@example.com", "bob", 121500, testTime)
	require.ErrorIs(t, err, ErrBidTooLow)
}

func TestTryAppend_InvalidAmounts(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
	}{
		{"zero", 0},
		{"negative", -5000},
		{"below base price", 119000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New(120000, 1000)
			_, err := l.TryAppend("alice@example.com", "alice", tc.amount, testTime)
			require.ErrorIs(t, err, ErrInvalidAmount)

			_, _, count := l.Highest()
			assert.Zero(t, count)
		})
	}
}

func TestTryAppend_FirstBidAtBaseIsTooLow(t *testing.T) {
	// at or above base but short of base+increment is TooLow, not invalid
	l := New(120000, 1000)
	_, err := l.TryAppend("alice@example.com", "alice", 120000, testTime)
	require.ErrorIs(t, err, ErrBidTooLow)
}

func TestTryAppend_LadderHoldsAtMaxInt64(t *testing.T) {
	l := New(0, 1000)

	top, err := l.TryAppend("a@example.com", "a", math.MaxInt64, testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, top.Sequence)

	// nothing can outbid the ceiling; a lower bid must stay rejected even
	// though highest+increment is not representable
	_, err = l.TryAppend("b@example.com", "b", 5, testTime)
	require.ErrorIs(t, err, ErrBidTooLow)

	_, err = l.TryAppend("c@example.com", "c", math.MaxInt64, testTime)
	require.ErrorIs(t, err, ErrBidTooLow)

	highest, name, count := l.Highest()
	assert.Equal(t, int64(math.MaxInt64), highest)
	assert.Equal(t, "a", name)
	assert.Equal(t, 1, count)
}

func TestHighest_EmptyLedgerReportsBasePrice(t *testing.T) {
	l := New(85000, 1000)
	highest, name, count := l.Highest()
	assert.Equal(t, int64(85000), highest)
	assert.Empty(t, name)
	assert.Zero(t, count)
}

func TestSequenceNumbers_DenseAndGapless(t *testing.T) {
	l := New(0, 1000)
	amounts := []int64{1000, 2000, 5000, 6000, 99000}
	for _, amt := range amounts {
		_, err := l.TryAppend("u", "u", amt, testTime)
		require.NoError(t, err)
	}
	// sprinkle rejections between accepts; they must not consume sequences
	_, err := l.TryAppend("u", "u", 99000, testTime)
	require.ErrorIs(t, err, ErrBidTooLow)

	_, err = l.TryAppend("u", "u", 100000, testTime)
	require.NoError(t, err)

	bids := l.Bids()
	require.Len(t, bids, 6)
	for i, b := range bids {
		assert.Equal(t, i+1, b.Sequence)
		if i > 0 {
			assert.Greater(t, b.Amount, bids[i-1].Amount)
		}
	}
}

func TestBids_ReturnsCopy(t *testing.T) {
	l := New(0, 1000)
	_, err := l.TryAppend("u", "u", 1000, testTime)
	require.NoError(t, err)

	bids := l.Bids()
	bids[0].Amount = 7
	highest, _, _ := l.Highest()
	assert.Equal(t, int64(1000), highest)
}
