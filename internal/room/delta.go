package room

import (
	"github.com/gearbid/auction-backend/internal/ledger"
	"github.com/gearbid/auction-backend/internal/presence"
)

type DeltaKind string

const (
	DeltaBidAccepted     DeltaKind = "bid_accepted"
	DeltaPresenceChanged DeltaKind = "presence_changed"
)

// Delta is one incremental state change broadcast to every subscriber of a
// room. Seq is room-monotonic across both delta kinds; subscribers apply
// deltas in Seq order on top of their initial snapshot.
type Delta struct {
	Kind     DeltaKind        `json:"kind"`
	Seq      int              `json:"seq"`
	Bid      *ledger.Bid      `json:"bid,omitempty"`
	Presence *presence.Record `json:"presence,omitempty"`
}

// Snapshot is the full room state handed to a subscriber at the moment its
// delta stream begins. DeltaSeq is the sequence of the last delta already
// folded into the snapshot; the first streamed delta carries DeltaSeq+1.
type Snapshot struct {
	AuctionID string            `json:"auction_id"`
	BasePrice int64             `json:"base_price"`
	Bids      []ledger.Bid      `json:"bids"`
	Roster    []presence.Record `json:"roster"`
	DeltaSeq  int               `json:"delta_seq"`
}

// View is the read model for the REST surface and tests.
type View struct {
	AuctionID   string            `json:"auction_id"`
	State       State             `json:"state"`
	BasePrice   int64             `json:"base_price"`
	Highest     int64             `json:"highest"`
	HighestName string            `json:"highest_bidder,omitempty"`
	BidCount    int               `json:"bid_count"`
	Bids        []ledger.Bid      `json:"bids"`
	Roster      []presence.Record `json:"roster"`
	Subscribers int               `json:"subscribers"`
	DeltaSeq    int               `json:"delta_seq"`
}
