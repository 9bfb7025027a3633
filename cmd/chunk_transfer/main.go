package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/italolelis/chunk_transfer/internal/cleanup"
	"github.com/italolelis/chunk_transfer/internal/config"
	"github.com/italolelis/chunk_transfer/internal/fileapi"
	"github.com/italolelis/chunk_transfer/internal/http/rest"
	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/notifier"
	"github.com/italolelis/chunk_transfer/internal/storage"
	"github.com/italolelis/chunk_transfer/internal/storage/sqlite"
	"github.com/italolelis/chunk_transfer/internal/telemetry"
)

var version = "dev"

// stalePartialAge is how old a leftover temporary download must be before it is removed.
const stalePartialAge = 24 * time.Hour

const usage = `usage: chunk_transfer <command> [arguments]

commands:
  upload <file>...          chunked upload using PROTOCOL
  upload-regular <file>...  upload each file in a single request
  download <name>...        download files into TARGET_DIR
  history [-limit N]        list finished transfers
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Debug("chunk transfer starting...", "version", version, "log_level", cfg.LogLevel, "command", os.Args[1])

	if err := run(logctx.WithLogger(ctx, logger), cfg, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		OTLPInterval:   cfg.Telemetry.OTLPInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)
		tel.RecordSystemError(ctx, "database", "init")

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedTransferRepository(database, tel)

	// =========================================================================
	// Start Cleanup
	if _, err := cleanup.PruneHistory(ctx, repo, cfg.KeepHistoryFor); err != nil {
		logger.Warn("history cleanup failed", "err", err)
	}

	if command == "history" {
		return printHistory(ctx, repo, args)
	}

	if cfg.ServerURL == "" {
		return errors.New("SERVER_URL is required")
	}

	// =========================================================================
	// Start File API Client
	client := fileapi.NewClient(cfg.ServerURL,
		fileapi.WithHTTPClient(fileapi.NewHTTPClient(cfg.APIToken, cfg.HTTPTimeout)),
		fileapi.WithRegularUploadPath(cfg.RegularUploadPath),
	)

	a := &app{
		cfg:      cfg,
		client:   client,
		tel:      tel,
		journal:  repo,
		notifier: setupNotifier(cfg),
		tracker:  &sessionTracker{},
	}

	// =========================================================================
	// Start Status Server
	if cfg.Web.Enabled {
		server := setupServer(ctx, a.tracker, repo, tel, cfg)

		go func() {
			logger.Info("Initializing status server", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "err", err)
			}
		}()

		defer func() {
			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)
				server.Close()
			}
		}()
	}

	// =========================================================================
	// Run Command
	if len(args) == 0 {
		return fmt.Errorf("%s: at least one argument is required\n\n%s", command, usage)
	}

	switch command {
	case "upload":
		return a.forEach(ctx, args, a.upload)
	case "upload-regular":
		return a.forEach(ctx, args, a.uploadRegular)
	case "download":
		if err := cleanup.RemoveStalePartials(ctx, cfg.TargetDir, stalePartialAge); err != nil {
			logger.Warn("failed to remove stale partial downloads", "err", err)
		}

		return a.forEach(ctx, args, a.download)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

func setupNotifier(cfg *config.Config) notifier.Notifier {
	return notifier.New(cfg.DiscordWebhookURL, &http.Client{Timeout: 10 * time.Second})
}

// setupServer prepares the handlers and services to create the status server.
func setupServer(
	ctx context.Context, tracker *sessionTracker, history storage.TransferReadRepository, tel *telemetry.Telemetry, cfg *config.Config,
) *http.Server {
	r := rest.NewRouter(rest.NewStatusHandler(tracker, history), tel)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
