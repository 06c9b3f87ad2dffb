// Package server assembles the HTTP surface: storage, services, handlers
// and middleware.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"libracatalog/internal/audit"
	"libracatalog/internal/catalog"
	"libracatalog/internal/circulation"
	"libracatalog/internal/config"
	"libracatalog/internal/httpx"
	"libracatalog/internal/membership"
	"libracatalog/internal/memstore"
	"libracatalog/internal/reservation"
	"libracatalog/internal/storage"
	"libracatalog/internal/validate"
)

const readyTimeout = 2 * time.Second

// Repositories groups the persistence implementations the services run on.
type Repositories struct {
	Books        catalog.Repository
	Members      membership.Repository
	Records      circulation.Repository
	Reservations reservation.Repository
	Events       audit.Store
}

func PostgresRepositories() Repositories {
	return Repositories{
		Books:        catalog.NewPostgresRepository(),
		Members:      membership.NewPostgresRepository(),
		Records:      circulation.NewPostgresRepository(),
		Reservations: reservation.NewPostgresRepository(),
		Events:       audit.NewPostgresStore(),
	}
}

func MemoryRepositories(s *memstore.Store) Repositories {
	return Repositories{
		Books:        s.Books(),
		Members:      s.Members(),
		Records:      s.Records(),
		Reservations: s.Reservations(),
		Events:       s.Events(),
	}
}

// OpenStore connects the configured driver and returns matching repositories.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (storage.DB, Repositories, error) {
	if cfg.Driver == storage.DriverMemory {
		s := memstore.New()
		return s, MemoryRepositories(s), nil
	}
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, Repositories{}, fmt.Errorf("open store: %w", err)
	}
	return db, PostgresRepositories(), nil
}

// NewRouter wires services and handlers over db and returns the root handler.
func NewRouter(cfg config.Config, logger *slog.Logger, db storage.DB, repos Repositories) http.Handler {
	rs := httpx.NewResponder(logger, cfg.IsDevelopment())
	v := validate.New()

	books := catalog.NewHandler(catalog.NewService(db, repos.Books, repos.Events, logger), v, rs)
	members := membership.NewHandler(membership.NewService(db, repos.Members, repos.Events, logger), v, rs)
	records := circulation.NewHandler(circulation.NewService(db, repos.Records, repos.Events, logger), v, rs)
	reservations := reservation.NewHandler(reservation.NewService(db, repos.Reservations, repos.Events, logger), v, rs)
	events := audit.NewHandler(repos.Events, db, v, rs)

	r := chi.NewRouter()
	r.NotFound(rs.RouteNotFound)
	r.MethodNotAllowed(rs.RouteNotFound)

	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(logger))
	r.Use(httpx.Recover(rs))
	if cfg.RateLimit.RPS > 0 {
		r.Use(httpx.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware(rs))
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(httpx.BodyLimit(cfg.MaxBodyBytes))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		rs.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "readiness check failed", "error", err)
			rs.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		rs.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/books", books.Routes)
	r.Route("/api/members", members.Routes)
	r.Route("/api/borrowing-records", records.Routes)
	r.Route("/api/borrowing", records.Routes)
	r.Route("/api/reservations", reservations.Routes)
	r.Get("/api/events", events.HandleStream)

	return r
}
