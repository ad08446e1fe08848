package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reading-leveler/internal/app"
	"reading-leveler/internal/auth"
	"reading-leveler/internal/config"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/scheduler"
	"reading-leveler/internal/telegram"
)

func main() {
	// Try several common locations for .env
	if err := godotenv.Load(".env" /*, "../.env", "cmd/bot/.env"*/); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if cfg.TelegramBotToken == "" {
		log.Fatalf("TELEGRAM_BOT_TOKEN is required")
	}
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

	authSvc, err := auth.NewWithRepo(auth.NewStoreRepository(a.Store, auth.UsersKey), cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

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

	bot, err := telegram.New(cfg.TelegramBotToken, authSvc, a.Registry, a.Pipeline, telegram.Options{
		AdminUserID: cfg.AdminUserID,
		ParseMode:   cfg.ParseMode,
		PendingRepo: auth.NewStoreRepository(a.Store, auth.PendingKey),
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	bot.Start(ctx)
}
