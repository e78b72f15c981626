// Command souqmarket serves the marketplace HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"souqmarket/config"
	"souqmarket/db"
	"souqmarket/seed"
)

var log = logging.Logger("api")

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "souqmarket",
	Short: "Livestock marketplace API",
	Long: `souqmarket serves the public catalog, order intake, farmer accounts and
the admin moderation API over HTTP, backed by SQLite or PostgreSQL.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logging.SetAllLoggers(logging.LevelDebug)
		} else {
			logging.SetAllLoggers(logging.LevelInfo)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the configured store",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import pre-approved products from a YAML catalog",
	RunE:  runSeed,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var (
	configPath string
	listenAddr string
	seedFile   string
	debug      bool
	force      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override listen address")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed catalog file (defaults to seed.path)")
	configInitCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if cfg.Admin.Secret == config.DefaultAdminSecret {
		log.Warn("admin secret is the shipped default; set ADMIN_PASSWORD before exposing this server")
	}

	backend, err := db.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()

	server, err := NewServer(cfg, backend)
	if err != nil {
		return err
	}

	if cfg.Seed.Path != "" {
		if _, err := seed.ImportFile(ctx, server.catalog, cfg.Seed.Path); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("listening", "addr", cfg.Listen, "driver", backend.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := db.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	backend.Close()
	log.Infow("migrations up to date", "driver", cfg.Storage.Driver)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := seedFile
	if path == "" {
		path = cfg.Seed.Path
	}
	if path == "" {
		return errors.New("no seed file: pass --file or set seed.path")
	}

	backend, err := db.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()

	server, err := NewServer(cfg, backend)
	if err != nil {
		return err
	}
	n, err := seed.ImportFile(cmd.Context(), server.catalog, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d products\n", n)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; pass --force to overwrite", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	log.Infow("config written", "path", path)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
