package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/app"
	"github.com/MaykGomes92/teste-ar-sub000/internal/config"
	"github.com/MaykGomes92/teste-ar-sub000/internal/deliverable"
	"github.com/MaykGomes92/teste-ar-sub000/internal/email"
	"github.com/MaykGomes92/teste-ar-sub000/internal/evidence"
	"github.com/MaykGomes92/teste-ar-sub000/internal/search"
	"github.com/MaykGomes92/teste-ar-sub000/internal/session"
	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
	"github.com/MaykGomes92/teste-ar-sub000/internal/workflow"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	fetcher := deliverable.NewFetcher(dataStore, cfg.FetchTimeout)
	controller := workflow.NewController(dataStore)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	opts := []app.Option{app.WithSearch(searchService)}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		opts = append(opts, app.WithSessionStore(redisStore))
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		evidenceStore, err := evidence.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("evidence storage init failed: %v", err)
		}
		opts = append(opts, app.WithEvidence(evidenceStore))
	} else {
		log.Printf("Evidence storage not configured, uploads disabled")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		opts = append(opts, app.WithMailer(mailer))
	}

	service := app.New(cfg, dataStore, fetcher, controller, opts...)

	projectIDs, err := dataStore.AllProjectIDs(ctx)
	if err != nil {
		log.Printf("WARNING: could not list projects for search bootstrap: %v", err)
	} else {
		service.Bootstrap(ctx, projectIDs)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("GRC API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
