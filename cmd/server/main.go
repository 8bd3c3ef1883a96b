package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/catalog"
	"github.com/leverplay/game-engine/internal/engine"
	"github.com/leverplay/game-engine/internal/game"
	"github.com/leverplay/game-engine/internal/ledger"
	"github.com/leverplay/game-engine/internal/metrics"
	"github.com/leverplay/game-engine/internal/model"
	"github.com/leverplay/game-engine/internal/risk"
	"github.com/leverplay/game-engine/internal/sim"
	"github.com/leverplay/game-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Random source ---
	// SEED makes the whole run reproducible; without it, seed from time.
	seed := uint64(time.Now().UnixNano())
	if v := os.Getenv("SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			slog.Error("invalid SEED", "err", err)
			os.Exit(1)
		}
		seed = n
	}
	rnd := rand.New(rand.NewPCG(seed, seed))

	// --- Price engine ---
	eng, err := engine.New(engine.DefaultConfig(), rnd, catalog.DefaultAssets())
	if err != nil {
		slog.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	// --- Ledger ---
	startBalance := decimal.NewFromInt(1000)
	if v := os.Getenv("START_BALANCE"); v != "" {
		b, err := decimal.NewFromString(v)
		if err != nil || b.LessThanOrEqual(decimal.Zero) {
			slog.Error("invalid START_BALANCE", "value", v)
			os.Exit(1)
		}
		startBalance = b
	}

	playerID := os.Getenv("PLAYER_ID")
	if playerID == "" {
		playerID = "player-1"
	}
	account := model.Account{
		PlayerID: playerID,
		Name:     os.Getenv("PLAYER_NAME"),
		Balance:  startBalance,
	}
	led := ledger.New(eng, account, 80)

	// --- Trade limits ---
	limiter := risk.NewTradeLimiter(
		100,                           // max leverage
		decimal.NewFromInt(1_000_000), // max notional per trade
		decimal.NewFromInt(1),         // one open may escrow the whole balance
	)

	// --- Simulator ---
	simulator := sim.New(eng, led, limiter, rnd)

	// Restore a previous save if one exists.
	if saved, err := st.LoadGame(context.Background(), playerID); err == nil {
		if err := simulator.Restore(*saved); err != nil {
			slog.Error("saved game restore failed", "err", err)
			os.Exit(1)
		}
		slog.Info("saved game restored", "player", playerID, "saved_at", saved.SavedAt)
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("saved game load failed", "err", err)
	}

	// --- WebSocket hub ---
	wsHub := game.NewWSHub()
	go wsHub.Run()

	// --- Game service ---
	svc := game.NewService(simulator, st, wsHub)

	// --- Market tick loop ---
	// The core has no timers; this scheduler owns the cadence.
	tickMS := 1500
	if v := os.Getenv("TICK_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			slog.Error("invalid TICK_MS", "value", v)
			os.Exit(1)
		}
		tickMS = n
	}
	tickCtx, stopTicks := context.WithCancel(context.Background())
	defer stopTicks()
	go func() {
		ticker := time.NewTicker(time.Duration(tickMS) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				autoClosed := simulator.Tick()
				svc.RecordTick(autoClosed)
				svc.BroadcastPrices()
			}
		}
	}()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"game-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time game updates.
		r.Get("/ws", wsHub.HandleWS)

		// Read-only snapshot.
		r.Get("/snapshot", svc.GetSnapshot)

		// Position commands.
		r.Post("/positions", svc.OpenPosition)
		r.Post("/positions/close", svc.ClosePosition)

		// Scripted market events.
		r.Post("/events", svc.TriggerEvent)

		// Top-up flow: request now, credit on webhook confirmation.
		r.Post("/topups", svc.RequestTopUp)
		r.Post("/topups/confirm", svc.ConfirmTopUp)

		// Session management.
		r.Post("/reset", svc.Reset)
		r.Post("/save", svc.SaveGame)
		r.Post("/load", svc.LoadGame)

		// Leaderboard.
		r.Get("/leaderboard", svc.GetLeaderboard)
		r.Post("/leaderboard", svc.PostScore)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("game-engine listening", "port", port, "tick_ms", tickMS, "seed", seed)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopTicks()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down game-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("game-engine stopped")
}
