package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/gearbid/auction-backend/internal/config"
	"github.com/gearbid/auction-backend/internal/registry"
	"github.com/gearbid/auction-backend/internal/ws"
)

func SetupRoutes(reg *registry.Registry, cfg config.Config, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(reg, cfg, log))
	r.Get("/auctions/{auctionID}", GetAuction(reg, cfg))
	r.Post("/auctions/{auctionID}/bids", PlaceBid(reg, cfg, log))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}
