// Package main is the entry point for the Humanlink service: it wires the
// configured render channel to the orchestrator and exposes the interaction
// tools over MCP. The web channel additionally serves an HTTP API and
// WebSocket notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/channel"
	"github.com/humanlink/humanlink/internal/channel/chatbot"
	"github.com/humanlink/humanlink/internal/channel/console"
	"github.com/humanlink/humanlink/internal/channel/web"
	"github.com/humanlink/humanlink/internal/common/config"
	"github.com/humanlink/humanlink/internal/common/httpmw"
	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/history"
	"github.com/humanlink/humanlink/internal/mcpserver"
	"github.com/humanlink/humanlink/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadWithPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		dump, err := cfg.Dump()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(dump)
		return
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Humanlink...", zap.String("channel", cfg.Channel.Kind))

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Build the render channel
	var (
		ch     channel.Channel
		engine *chatbot.Engine
		webCh  *web.Web
		hub    *web.Hub
	)
	kind := strings.ToLower(cfg.Channel.Kind)
	switch kind {
	case "console":
		ch = console.New(os.Stdin, os.Stdout, log)

	case "web":
		hub = web.NewHub(log)
		go hub.Run(ctx)
		webCh = web.NewChannel(hub, log)
		ch = webCh

	case "telegram":
		transport, err := chatbot.NewTelegramTransport(cfg.Telegram, log)
		if err != nil {
			log.Fatal("Failed to create Telegram transport", zap.Error(err))
		}
		engine = chatbot.NewEngine(transport, log)
		ch = engine

	case "nats":
		transport, err := chatbot.NewNATSTransport(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		engine = chatbot.NewEngine(transport, log)
		ch = engine

	default:
		log.Fatal("Unknown channel kind", zap.String("kind", cfg.Channel.Kind))
	}

	if engine != nil {
		engine.Start(ctx)
		defer engine.Close()
	}

	// 5. Open the interaction history store
	orchOpts := []orchestrator.Option{
		orchestrator.WithDefaultTimeout(cfg.Interaction.DefaultTimeoutDuration()),
	}
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			log.Fatal("Failed to open history store", zap.Error(err))
		}
		defer store.Close()
		orchOpts = append(orchOpts, orchestrator.WithRecorder(store))
		log.Info("Interaction history enabled", zap.String("path", cfg.History.Path))
	}

	// 6. Create the orchestrator
	orch := orchestrator.New(ch, kind, log, orchOpts...)

	// 7. Start the HTTP server for the web channel
	var server *http.Server
	if webCh != nil {
		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(gin.Recovery())
		router.Use(httpmw.RequestLogger(log, "humanlink"))

		web.RegisterRoutes(router, webCh, hub, log)
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		server = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
			WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		}
		go func() {
			log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("Failed to start HTTP server", zap.Error(err))
			}
		}()
	}

	// 8. Start the MCP server
	if cfg.MCP.Enabled {
		mcpSrv, mcpCleanup, err := mcpserver.Provide(ctx, mcpserver.Config{Port: cfg.MCP.Port}, orch, log)
		if err != nil {
			log.Fatal("Failed to start MCP server", zap.Error(err))
		}
		defer func() {
			if err := mcpCleanup(); err != nil {
				log.Error("MCP server stop error", zap.Error(err))
			}
		}()
		log.Info("MCP server ready",
			zap.String("sse", mcpSrv.SSEEndpoint()),
			zap.String("streamable_http", mcpSrv.StreamableHTTPEndpoint()))
	}

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Humanlink...")

	// 10. Graceful shutdown
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	log.Info("Humanlink stopped")
}
