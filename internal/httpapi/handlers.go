package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gearbid/auction-backend/internal/config"
	"github.com/gearbid/auction-backend/internal/registry"
	"github.com/gearbid/auction-backend/internal/room"
	"github.com/gearbid/auction-backend/internal/types"
)

// PlaceBid is the REST path into a room: validate, submit, and report the
// outcome plus the resulting state in one response.
func PlaceBid(reg *registry.Registry, cfg config.Config, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "auctionID")
		if !knownAuction(cfg, auctionID) {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}

		var req types.PlaceBidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Identity == "" {
			http.Error(w, "missing identity", http.StatusBadRequest)
			return
		}

		// retry if the room retires between lookup and submit
		for {
			rm := reg.GetOrCreate(auctionID)
			if rm == nil {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			bid, view, err := rm.SubmitBid(req.Identity, req.DisplayName, req.Amount)
			if errors.Is(err, room.ErrRetired) {
				continue
			}

			resp := types.PlaceBidResponse{State: view}
			if err != nil {
				resp.Reason = types.RejectionReason(err)
				log.Info("bid rejected",
					zap.String("auction_id", auctionID),
					zap.String("bidder", req.Identity),
					zap.Int64("amount", req.Amount),
					zap.String("reason", resp.Reason))
			} else {
				resp.Accepted = true
				resp.Bid = &bid
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}
}

// GetAuction returns the current room view.
func GetAuction(reg *registry.Registry, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID := chi.URLParam(r, "auctionID")
		if !knownAuction(cfg, auctionID) {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}

		for {
			rm := reg.GetOrCreate(auctionID)
			if rm == nil {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			view, err := rm.CurrentView()
			if errors.Is(err, room.ErrRetired) {
				continue
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func knownAuction(cfg config.Config, auctionID string) bool {
	if auctionID == "" {
		return false
	}
	if len(cfg.Catalog.Items) == 0 {
		return true
	}
	_, ok := cfg.Catalog.Find(auctionID)
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
