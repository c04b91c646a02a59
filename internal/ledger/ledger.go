package ledger

import (
	"errors"
	"fmt"
	"time"
)

var ErrBidTooLow = errors.New("bid too low")
var ErrInvalidAmount = errors.New("invalid bid amount")

// Bid is one accepted bid. Amounts are integer minor-currency units.
// Sequence is assigned by the ledger and is the sole ordering key;
// PlacedAt is server time, kept for display only.
type Bid struct {
	Sequence   int       `json:"sequence"`
	Bidder     string    `json:"bidder"`
	BidderName string    `json:"bidder_name"`
	Amount     int64     `json:"amount"`
	PlacedAt   time.Time `json:"placed_at"`
}

// Ledger is the append-only bid record for one auction. It is not safe for
// concurrent use; the owning room serializes all access.
type Ledger struct {
	basePrice    int64
	minIncrement int64
	bids         []Bid
}

func New(basePrice, minIncrement int64) *Ledger {
	return &Ledger{
		basePrice:    basePrice,
		minIncrement: minIncrement,
	}
}

// TryAppend validates a candidate bid and appends it on success, assigning
// the next sequence number. A bid is accepted iff it is at least the current
// highest plus the minimum increment; the first bid must also meet the base
// price. Only an accepted bid mutates the ledger.
func (l *Ledger) TryAppend(bidder, bidderName string, amount int64, now time.Time) (Bid, error) {
	if amount <= 0 {
		return Bid{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if len(l.bids) == 0 && amount < l.basePrice {
		return Bid{}, fmt.Errorf("%w: below base price %d", ErrInvalidAmount, l.basePrice)
	}

	highest, _, _ := l.Highest()
	// compare as a difference: highest+minIncrement can overflow int64
	if amount-highest < l.minIncrement {
		return Bid{}, fmt.Errorf("%w: must exceed %d by at least %d", ErrBidTooLow, highest, l.minIncrement)
	}

	bid := Bid{
		Sequence:   len(l.bids) + 1,
		Bidder:     bidder,
		BidderName: bidderName,
		Amount:     amount,
		PlacedAt:   now,
	}
	l.bids = append(l.bids, bid)
	return bid, nil
}

// Highest reports the ledger tail: the current winning amount, who holds it,
// and the total number of accepted bids. With no bids yet the amount is the
// base price and the holder is empty.
func (l *Ledger) Highest() (int64, string, int) {
	if len(l.bids) == 0 {
		return l.basePrice, "", 0
	}
	last := l.bids[len(l.bids)-1]
	return last.Amount, last.BidderName, len(l.bids)
}

// Bids returns a copy of the accepted bids in sequence order.
func (l *Ledger) Bids() []Bid {
	out := make([]Bid, len(l.bids))
	copy(out, l.bids)
	return out
}

func (l *Ledger) BasePrice() int64 { return l.basePrice }
