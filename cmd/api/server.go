package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"souqmarket/admin"
	"souqmarket/catalog"
	"souqmarket/config"
	"souqmarket/db"
	"souqmarket/farmer"
	"souqmarket/moderation"
	"souqmarket/order"
)

type farmerService interface {
	Register(ctx context.Context, req farmer.RegisterRequest) (farmer.AuthResult, error)
	Login(ctx context.Context, req farmer.LoginRequest) (farmer.AuthResult, error)
	Logout(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (farmer.Identity, error)
	PublicProfile(ctx context.Context, id string) (farmer.Farmer, error)
}

type catalogService interface {
	ListPublic(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
	GetPublicBySlug(ctx context.Context, slug string) (catalog.Product, error)
	GetPublicByFarmer(ctx context.Context, farmerID string) ([]catalog.Product, error)
	CreatePending(ctx context.Context, farmerID, farmerCity string, sub catalog.Submission) (string, error)
	ListOwnedByFarmer(ctx context.Context, farmerID string) ([]catalog.Product, error)
	ListPending(ctx context.Context) ([]catalog.PendingProduct, error)
	ImportSeed(ctx context.Context, items []catalog.SeedItem) (int, error)
}

type moderationService interface {
	Approve(ctx context.Context, slug string) error
	Reject(ctx context.Context, slug string) error
	SelfDelete(ctx context.Context, slug, farmerID string) error
}

type orderService interface {
	PlaceOrder(ctx context.Context, c order.Customer, items []order.CartItem) (order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers and the services behind them.
type Server struct {
	farmers        farmerService
	catalog        catalogService
	moderation     moderationService
	orders         orderService
	gate           *admin.Gate
	store          pinger
	whatsAppNumber string
	maxBodyBytes   int64
	requestTimeout time.Duration
}

// NewServer wires services over the backend's repositories.
func NewServer(cfg *config.Config, backend *db.Backend) (*Server, error) {
	hasher, err := farmer.NewHasher(farmer.Algorithm(cfg.Passwords.Algorithm))
	if err != nil {
		return nil, err
	}
	return &Server{
		farmers:        farmer.NewService(backend.Farmers, hasher, cfg.Sessions.TTL),
		catalog:        catalog.NewService(backend.Products),
		moderation:     moderation.NewService(backend.Products),
		orders:         order.NewService(backend.Orders),
		gate:           admin.NewGate(cfg.Admin.Secret, cfg.Admin.Header),
		store:          backend,
		whatsAppNumber: cfg.WhatsAppNumber,
		maxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		requestTimeout: cfg.HTTP.RequestTimeout,
	}, nil
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(securityHeaders)
	if s.requestTimeout > 0 {
		r.Use(requestTimeout(s.requestTimeout))
	}
	if s.maxBodyBytes > 0 {
		r.Use(limitBody(s.maxBodyBytes))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/meta", s.handleMeta)

		r.Get("/products", s.handleListProducts)
		r.Get("/products/{slug}", s.handleGetProduct)
		r.Post("/orders", s.handlePlaceOrder)

		r.Route("/farmers", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Get("/{id}/public", s.handleFarmerPublic)

			r.Group(func(r chi.Router) {
				r.Use(s.requireFarmer)
				r.Get("/me", s.handleMe)
				r.Post("/logout", s.handleLogout)
				r.Post("/products", s.handleCreateProduct)
				r.Get("/products", s.handleOwnedProducts)
				r.Delete("/products/{slug}", s.handleDeleteProduct)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.gate.Middleware)
			r.Get("/orders", s.handleAdminOrders)
			r.Get("/pending-products", s.handlePendingProducts)
			r.Post("/products/{slug}/approve", s.handleApprove)
			r.Post("/products/{slug}/reject", s.handleReject)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			log.Warnw("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"whatsappNumber": s.whatsAppNumber})
}
