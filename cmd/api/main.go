package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"authgate.dev/internal/audit"
	"authgate.dev/internal/auth"
	"authgate.dev/internal/config"
	"authgate.dev/internal/gate"
	"authgate.dev/internal/httpapi"
	"authgate.dev/internal/obs"
	"authgate.dev/internal/ratelimit"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if db == nil {
		log.Fatal("AUTHGATE_PG_DSN is required")
	}

	hashGate := gate.New(cfg.GateSlots)
	obs.RegisterHashGate(hashGate.InFlight, hashGate.Slots)

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.RateWindow,
		MaxAttempts: cfg.RateMaxAttempts,
		Lockout:     cfg.RateLockout,
		MaxKeys:     cfg.RateMaxKeys,
	})
	obs.RegisterLimiterKeys(limiter.Len)

	recorder := audit.NewRecorder(audit.NewPGStore(db), cfg.AuditBuffer, cfg.AuditExtraMax)

	store := auth.NewPGStore(db)
	hasher := auth.BcryptHasher{}
	verifier, err := auth.NewVerifier(store, hasher, hashGate)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}
	tokens, err := auth.NewTokens(store, cfg.TokenSecret,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAudience(cfg.TokenAudience),
		auth.WithTTL(cfg.TokenTTL),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	svc, err := auth.NewService(auth.Deps{
		Store:    store,
		Verifier: verifier,
		Tokens:   tokens,
		Limiter:  limiter,
		Hasher:   hasher,
		Audit:    recorder,
	})
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	// Background sweep of stale limiter entries; cancelled on shutdown.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go limiter.RunReaper(reaperCtx, cfg.ReaperInterval, cfg.ReaperIdle)

	api := httpapi.New(httpapi.Options{
		Service:           svc,
		Ready:             httpapi.ReadyProbe{DB: db},
		Version:           version,
		TrustProxy:        cfg.TrustProxy,
		ThrottlePerSecond: cfg.ThrottlePerSecond,
		ThrottleBurst:     cfg.ThrottleBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgate %s on %s (%s)", version, cfg.Addr, cfg)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	stopReaper()
	recorder.Close()
	_ = db.Close()
	log.Println("Stopped")
}
