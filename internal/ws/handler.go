package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/gearbid/auction-backend/internal/config"
	"github.com/gearbid/auction-backend/internal/registry"
	"github.com/gearbid/auction-backend/internal/room"
	"github.com/gearbid/auction-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler upgrades a client to its live auction session: one subscription to
// the room's delta stream, a reader loop for bids and heartbeats, and
// disconnect detection via the read deadline. The deadline doubles as the
// presence liveness timeout: a connection that goes silent longer than that
// is marked offline.
func Handler(reg *registry.Registry, cfg config.Config, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := r.URL.Query().Get("auction")
		identity := r.URL.Query().Get("identity")
		displayName := r.URL.Query().Get("name")
		if auctionID == "" || identity == "" {
			http.Error(w, "missing auction or identity", http.StatusBadRequest)
			return
		}
		if len(cfg.Catalog.Items) > 0 {
			if _, ok := cfg.Catalog.Find(auctionID); !ok {
				http.Error(w, "auction not found", http.StatusNotFound)
				return
			}
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		rm, sub := subscribe(reg, auctionID, identity, displayName)
		if sub == nil {
			_ = writeMsg(r.Context(), conn, types.ServerMessage{Type: "error", Error: "subscribe failed"})
			return
		}
		defer rm.Unsubscribe(sub.Handle)

		log.Info("session started",
			zap.String("auction_id", auctionID),
			zap.String("identity", identity))

		// Writer goroutine: snapshot first, then deltas in sequence order.
		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			snap := sub.Snapshot
			if err := writeMsg(writeCtx, conn, types.ServerMessage{Type: "snapshot", Seq: snap.DeltaSeq, Snapshot: &snap}); err != nil {
				return
			}
			for d := range sub.Deltas {
				msg := types.ServerMessage{Type: string(d.Kind), Seq: d.Seq, Bid: d.Bid, Presence: d.Presence}
				if err := writeMsg(writeCtx, conn, msg); err != nil {
					return
				}
			}
			// Stream closed under us: the room retired or this subscriber
			// overflowed its buffer. Either way the client must resubscribe
			// for a fresh snapshot.
			conn.Close(websocket.StatusTryAgainLater, "resubscribe required")
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.PresenceTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// liveness timeout or connection loss: flip presence first,
				// then release the subscription via the deferred unsubscribe
				rm.MarkOffline(sub.Handle)
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				log.Info("session lost",
					zap.String("auction_id", auctionID),
					zap.String("identity", identity))
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeMsg(r.Context(), conn, types.ServerMessage{Type: "error", Error: "bad json"})
				continue
			}

			switch cm.Type {
			case "heartbeat":
				// the read itself refreshed the liveness deadline

			case "place_bid":
				_, _, err := rm.SubmitBid(identity, displayName, cm.Amount)
				if errors.Is(err, room.ErrRetired) {
					conn.Close(websocket.StatusTryAgainLater, "resubscribe required")
					return
				}
				if err != nil {
					// rejection goes to the submitting client only
					_ = writeMsg(r.Context(), conn, types.ServerMessage{Type: "bid_rejected", Reason: types.RejectionReason(err)})
				}

			default:
				_ = writeMsg(r.Context(), conn, types.ServerMessage{Type: "error", Error: "unknown type"})
			}
		}
	}
}

// subscribe attaches to the live room for auctionID, retrying once if the
// room retires between lookup and attach.
func subscribe(reg *registry.Registry, auctionID, identity, displayName string) (*room.Room, *room.Subscription) {
	for attempt := 0; attempt < 2; attempt++ {
		rm := reg.GetOrCreate(auctionID)
		if rm == nil {
			break
		}
		sub, err := rm.Subscribe(identity, displayName)
		if err == nil {
			return rm, sub
		}
	}
	return nil, nil
}

func writeMsg(parent context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
