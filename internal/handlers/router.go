package handlers

import (
	"net/http"

	"soleledger/internal/chart"
	"soleledger/internal/config"
	"soleledger/internal/db"
	"soleledger/internal/middleware"
	"soleledger/internal/store"
	"soleledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	reconcileDB  store.Selecter
	txRunner     db.TxRunner
	cfg          config.Config
	businesses   BusinessStore
	accounts     AccountStore
	categories   CategoryStore
	transactions TransactionStore
	journal      JournalStore
	audit        AuditStore
	balance      BalanceService
	sync         SyncService
	extractor    Extractor
	chartNodes   []chart.Node
	hub          *websocket.Hub
}

func New(reconcileDB store.Selecter, txRunner db.TxRunner, cfg config.Config, businesses BusinessStore, accounts AccountStore, categories CategoryStore, transactions TransactionStore, journal JournalStore, audit AuditStore, balance BalanceService, sync SyncService, extractor Extractor, chartNodes []chart.Node, hub *websocket.Hub) *Handler {
	return &Handler{
		reconcileDB:  reconcileDB,
		txRunner:     txRunner,
		cfg:          cfg,
		businesses:   businesses,
		accounts:     accounts,
		categories:   categories,
		transactions: transactions,
		journal:      journal,
		audit:        audit,
		balance:      balance,
		sync:         sync,
		extractor:    extractor,
		chartNodes:   chartNodes,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/business", h.CreateBusiness)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/business", h.GetBusiness)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/audit", h.ListAuditLogs)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/accounts", h.LinkAccount)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/accounts", h.ListAccounts)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Put("/accounts/{id}/balance", h.AdjustBalance)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/accounts/{id}/sync", h.SyncAccount)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/ledger/check", h.LedgerCheck)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/transactions", h.ListTransactions)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/transactions/{id}/reconcile", h.ReconcileTransaction)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/documents/match", h.MatchDocument)
	router.Get("/ws/sync", h.WSSync)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
