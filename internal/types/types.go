package types

import (
	"errors"

	"github.com/gearbid/auction-backend/internal/ledger"
	"github.com/gearbid/auction-backend/internal/presence"
	"github.com/gearbid/auction-backend/internal/room"
)

type ClientMessage struct {
	Type   string `json:"type"` // "place_bid" | "heartbeat"
	Amount int64  `json:"amount,omitempty"`
}

type ServerMessage struct {
	Type     string           `json:"type"` // "snapshot" | "bid_accepted" | "presence_changed" | "bid_rejected" | "error"
	Seq      int              `json:"seq,omitempty"`
	Snapshot *room.Snapshot   `json:"snapshot,omitempty"`
	Bid      *ledger.Bid      `json:"bid,omitempty"`
	Presence *presence.Record `json:"presence,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type PlaceBidRequest struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Amount      int64  `json:"amount"`
}

type PlaceBidResponse struct {
	Accepted bool        `json:"accepted"`
	Reason   string      `json:"reason,omitempty"`
	Bid      *ledger.Bid `json:"bid,omitempty"`
	State    room.View   `json:"state"`
}

// RejectionReason maps a ledger rejection to its wire vocabulary.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrBidTooLow):
		return "too_low"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "rejected"
	}
}
