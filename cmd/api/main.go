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

	"tempora.org/internal/auth"
	"tempora.org/internal/config"
	"tempora.org/internal/federation"
	"tempora.org/internal/httpapi"
	"tempora.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("missing TEMPORA_JWT_SECRET")
	}

	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		log.Fatal("missing TEMPORA_PG_DSN")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret,
		auth.WithSigningAlgorithm(cfg.JWTAlgorithm),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	sessions, err := auth.NewService(auth.NewPGStore(db), tokens,
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}

	var federator *federation.Federator
	if cfg.IdP.Enabled() {
		keys := federation.NewKeySet(cfg.IdP.JWKSURL)
		verifier := federation.NewVerifier(keys, cfg.IdP.ClientID, cfg.IdP.IssuerURL)
		idp := federation.NewClient(federation.ClientConfig{
			TokenURL:     cfg.IdP.TokenURL,
			AuthorizeURL: cfg.IdP.AuthorizeURL,
			ClientID:     cfg.IdP.ClientID,
			ClientSecret: cfg.IdP.ClientSecret,
			RedirectURI:  cfg.IdP.RedirectURI,
			Scope:        cfg.IdP.Scope,
		}, nil)
		federator = federation.NewFederator(verifier, idp, sessions)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, sessions, federator)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tempora-api %s on %s", version, srv.Addr)

	// graceful shutdown
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
	_ = db.Close()
	log.Println("Stopped")
}
