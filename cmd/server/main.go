package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/app"
	"reading-leveler/internal/config"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/scheduler"
	"reading-leveler/internal/server"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}); err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	sched := scheduler.New()
	if err := sched.AddJob("prune-usage", cfg.PruneSchedule, scheduler.PruneJob(a.Store, a.Retention(), time.Now)); err != nil {
		log.Fatalf("failed to schedule prune: %v", err)
	}
	if err := sched.AddJob("usage-report", cfg.ReportSchedule, scheduler.ReportJob(a.Store, time.Now)); err != nil {
		log.Fatalf("failed to schedule report: %v", err)
	}
	if err := sched.AddJob("evict-workspaces", cfg.EvictSchedule, scheduler.EvictJob(a.Registry, cfg.WorkspaceIdle)); err != nil {
		log.Fatalf("failed to schedule eviction: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.New(a.Registry, a.Pipeline, a.Packager, cfg.AllowedOrigins).Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.LogEvent(logrus.ErrorLevel, "shutdown failed", logrus.Fields{"error": err.Error()})
		}
	}()

	logger.LogEvent(logrus.InfoLevel, "server starting", logrus.Fields{"addr": cfg.HTTPAddr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.LogEvent(logrus.ErrorLevel, "server failed", logrus.Fields{"error": err.Error()})
		return
	}
	logger.Logger.Info("server stopped")
}
