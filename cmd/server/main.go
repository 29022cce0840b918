package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/config"
	"github.com/Tomochka91/ULogger/internal/httpapi"
	"github.com/Tomochka91/ULogger/internal/runtime"
	"github.com/Tomochka91/ULogger/internal/settings"
	"github.com/Tomochka91/ULogger/logging"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.NewLogger(logging.WithLevel(logLevelFromString(cfg.LogLevel)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := settings.NewStore(cfg.SettingsFile)
	baseDB, err := store.GetDbSettings()
	if err != nil {
		logger.Error(ctx, "failed to load settings: %v", err)
		os.Exit(1)
	}

	mgr := runtime.NewManager(baseDB, runtime.DefaultDBWriterFactory)
	autostartConnections(ctx, mgr, store, logger)

	mux := httpapi.NewMux(&httpapi.Deps{Store: store, Runtime: mgr, Logger: logger})

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: mux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info(ctx, "received shutdown signal, stopping server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGraceTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "error stopping http server: %v", err)
		}
		mgr.ShutdownAll(cfg.ShutdownGraceTimeout)
		cancel()
	}()

	logger.Info(ctx, "starting ULogger on port %d...", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(ctx, "http server failed: %v", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info(ctx, "shutdown complete")
}

// autostartConnections registers every configured connection and
// starts the ones marked autostart, mirroring get_runtime_manager's
// initialization sequence.
func autostartConnections(ctx context.Context, mgr *runtime.Manager, store *settings.Store, logger common.LoggerInterface) {
	connections, err := store.GetConnections()
	if err != nil {
		logger.Error(ctx, "failed to load connections: %v", err)
		return
	}

	for _, conn := range connections {
		connLogger := logger.WithFields(map[string]interface{}{
			"connection_id":   idOrZero(conn.ID),
			"connection_name": conn.Name,
			"connection_type": string(conn.Type),
		})

		worker, err := mgr.RegisterConnection(ctx, conn, connLogger)
		if err != nil {
			logger.Error(ctx, "failed to register connection %q: %v", conn.Name, err)
			continue
		}
		if conn.Autostart {
			if err := worker.Start(ctx); err != nil {
				logger.Error(ctx, "failed to autostart connection %q: %v", conn.Name, err)
			}
		}
	}
}

func idOrZero(id *int) int {
	if id == nil {
		return 0
	}
	return *id
}

func logLevelFromString(s string) common.LogLevel {
	switch strings.ToLower(s) {
	case "trace":
		return common.LevelTrace
	case "debug":
		return common.LevelDebug
	case "warn", "warning":
		return common.LevelWarn
	case "error":
		return common.LevelError
	case "none":
		return common.LevelNone
	default:
		return common.LevelInfo
	}
}
