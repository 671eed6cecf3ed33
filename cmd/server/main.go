package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/auth"
	"github.com/freeeve/backstab/internal/config"
	"github.com/freeeve/backstab/internal/daide"
	"github.com/freeeve/backstab/internal/handler"
	"github.com/freeeve/backstab/internal/logger"
	"github.com/freeeve/backstab/internal/middleware"
	"github.com/freeeve/backstab/internal/repository"
	"github.com/freeeve/backstab/internal/repository/filestore"
	"github.com/freeeve/backstab/internal/repository/postgres"
	redisrepo "github.com/freeeve/backstab/internal/repository/redis"
	"github.com/freeeve/backstab/internal/server"
)

// Exit codes: 0 clean shutdown, 1 fatal configuration, 2 persistence failure.
const (
	exitOK          = 0
	exitConfig      = 1
	exitPersistence = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Configuration failed")
		return exitConfig
	}

	// Snapshot store: PostgreSQL when configured, file store otherwise.
	var store repository.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("Database connection failed")
			return exitPersistence
		}
		defer db.Close()
		store = postgres.NewStore(db)
	} else {
		fs, err := filestore.Open(cfg.DataDir)
		if err != nil {
			log.Error().Err(err).Msg("Data directory unusable")
			return exitPersistence
		}
		store = fs
	}

	// Optional live-state mirror.
	var cache repository.LiveCache
	if cfg.RedisURL != "" {
		rc, err := redisrepo.NewClient(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without live mirror")
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	srv := server.New(cfg, store, cache)
	if err := srv.Boot(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to load persisted state")
		return exitPersistence
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	hub := handler.NewHub()
	wsHandler := handler.NewWSHandler(hub, srv, jwtMgr)
	authHandler := handler.NewAuthHandler(srv, jwtMgr)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("GET /ws", wsHandler.ServeWS)

	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"))

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// DAIDE listener for bot clients, hosting the configured game id.
	daideGame := os.Getenv("DAIDE_GAME_ID")
	var daideSrv *daide.Server
	if daideGame != "" {
		daideSrv = daide.NewServer(srv, daideGame)
		go func() {
			if err := daideSrv.ListenAndServe(":" + cfg.DaidePort); err != nil {
				log.Warn().Err(err).Msg("DAIDE listener stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	if daideSrv != nil {
		daideSrv.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("State snapshot failed during shutdown")
		return exitPersistence
	}

	log.Info().Msg("Server stopped")
	return exitOK
}
