package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"reading-leveler/internal/app"
	"reading-leveler/internal/config"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/mcptools"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	// stdout carries the protocol
	if err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Output: os.Stderr}); err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "reading-leveler-mcp",
		Version: "1.0.0",
	}, nil)
	mcptools.New(a.Registry, a.Pipeline, cfg.ArchiveDir).Register(server)

	log.Printf("Registered tools: check_usage, list_themes, save_theme, delete_theme, use_theme, generate_materials")

	transport := mcp.NewStdioTransport()
	if err := server.Run(ctx, transport); err != nil {
		log.Printf("MCP server failed: %v", err)
	}
}
