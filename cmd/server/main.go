package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soleledger/internal/bankfeed"
	"soleledger/internal/chart"
	"soleledger/internal/config"
	"soleledger/internal/db"
	"soleledger/internal/extraction"
	"soleledger/internal/handlers"
	"soleledger/internal/ledger"
	"soleledger/internal/logger"
	"soleledger/internal/reconciler"
	"soleledger/internal/store"
	"soleledger/internal/websocket"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	chartNodes, err := chart.LoadFile(cfg.ChartFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.ChartFile).Msg("falling back to built-in chart")
		chartNodes = chart.Default()
	}

	businesses := store.NewBusinessStore(database)
	accounts := store.NewAccountStore(database)
	categories := store.NewCategoryStore(database)
	transactions := store.NewTransactionStore(database)
	journal := store.NewJournalStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	balance := ledger.NewBalanceService(txRunner, accounts, categories, transactions, journal, audit)
	feed := bankfeed.NewHTTPClient(cfg.FeedURL, cfg.FeedAPIKey)
	extractor := extraction.NewHTTPClient(cfg.ExtractorURL, cfg.ExtractorAPIKey)
	sync := reconciler.New(txRunner, feed, accounts, categories, transactions, audit,
		log.With().Str("component", "reconciler").Logger(), cfg.SyncBatchSize, cfg.SyncHistoryMonths)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweeper := reconciler.NewSweeper(sync, accounts,
		log.With().Str("component", "sweep").Logger(), cfg.SweepStaleAfter, cfg.SweepConcurrency)
	go sweeper.Start(sweepCtx, cfg.SweepStaleAfter/2)

	handler := handlers.New(database, txRunner, cfg, businesses, accounts, categories, transactions, journal, audit, balance, sync, extractor, chartNodes, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("ledger API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("shutdown error")
	}
}
