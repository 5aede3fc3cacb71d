package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/wagnerlima/graph-memory/internal/api"
	"github.com/wagnerlima/graph-memory/internal/config"
	"github.com/wagnerlima/graph-memory/internal/logging"
	"github.com/wagnerlima/graph-memory/internal/server"
	"github.com/wagnerlima/graph-memory/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.Open(cfg.DB.Path)
	if err != nil {
		logger.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer store.Close()

	mcpServer := server.New(store)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cfg.MCP.Transport {
	case "stdio":
		logger.Info("graph-memory starting (stdio)")
		if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	case "http":
		restServer, err := api.NewServer(store, logger, &api.Config{Addr: cfg.HTTP.Addr})
		if err != nil {
			logger.Fatal("Failed to build http server", zap.Error(err))
		}

		mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)
		restServer.Mount("/mcp", mcpHandler)

		go func() {
			if err := restServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("HTTP server error", zap.Error(err))
			}
		}()

		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := restServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}
}
