/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ligoj/plugin-bt/internal/adapters/jira"
	"github.com/ligoj/plugin-bt/internal/config"
	httpx "github.com/ligoj/plugin-bt/internal/http"
	"github.com/ligoj/plugin-bt/internal/jobs"
	"github.com/ligoj/plugin-bt/internal/logger"
	"github.com/ligoj/plugin-bt/internal/repo"
	"github.com/ligoj/plugin-bt/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()

	// Adapters
	jc := jira.NewClient(cfg, log)

	// Services
	repository := repo.NewRepository(db, log)
	svc := services.New(cfg, log, repository, jc)

	// Bootstrap calendar and SLA definitions
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("seed load failed")
		}
		ctx2, cancel2 := context.WithTimeout(ctx, 30*time.Second)
		if err := svc.Seed(ctx2, seed); err != nil {
			cancel2()
			log.Fatal().Err(err).Msg("seed failed")
		}
		cancel2()
	}

	// HTTP server (Gin)
	router := httpx.NewRouter(cfg, log, svc, repository)

	// Cron
	cron := jobs.NewCron(cfg, log, svc, repository)
	cron.Start()
	defer cron.Stop()

	// graceful shutdown
	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil { log.Error().Err(err).Msg("http server error") }
	}

	time.Sleep(500 * time.Millisecond)
}
