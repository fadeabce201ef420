package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/barnabee/barnabee/internal/application"
	"github.com/barnabee/barnabee/internal/infrastructure/config"
	"github.com/barnabee/barnabee/internal/infrastructure/logger"
	httpserver "github.com/barnabee/barnabee/internal/interfaces/http"
	"github.com/barnabee/barnabee/internal/interfaces/repl"
)

const (
	appName    = "barnabee"
	appVersion = "0.3.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Barnabee, the private household voice assistant core",
		Long:  "Barnabee routes household utterances through intent classification, memory retrieval and device control, entirely on local hardware.",
		RunE:  runServe,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the assistant core (HTTP API + background workers)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Interactive console against an offline in-memory core",
		RunE:  runREPL,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "maintain",
		Short: "Run one memory maintenance pass (archive and purge) and exit",
		RunE:  runMaintain,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Barnabee",
		zap.String("version", appVersion),
		zap.String("database", cfg.Database.Type),
	)

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	app.Start()
	defer app.Stop()

	server := httpserver.NewServer(httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Mode: cfg.Server.Mode,
	}, app.Pipeline, app.AuditRepo(), app.Monitor(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Console output only; keep structured logs out of the prompt.
	log, err := logger.NewLogger(logger.Config{
		Level:      "warn",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	app, err := application.NewAppLite(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	app.Start()
	defer app.Stop()

	console := repl.New(app.Pipeline, os.Stdin, os.Stdout, log)
	return console.Run(context.Background())
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer app.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	stats, err := app.Writer().RunMaintenance(ctx)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	fmt.Printf("archived %d, purged %d\n", stats.Archived, stats.Purged)
	return nil
}
