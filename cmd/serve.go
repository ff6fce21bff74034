package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcdickinson/docref/internal/config"
	"github.com/jcdickinson/docref/internal/daemon"
	"github.com/jcdickinson/docref/internal/db"
	"github.com/jcdickinson/docref/internal/mcp"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "docref",
	Short: "Documentation identifier resolution and page merging",
	Long: `docref merges per-target documentation trees into one page tree per
module and resolves documentation identifiers to output paths, locally,
across modules and against external Javadoc or Dokka documentation.

Without a subcommand it serves the MCP tools over stdio.`,
	PersistentPreRun: setupLogging,
	Run:              runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools over stdio, backed by the daemon",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging; run the daemon in-process")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(externalCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(escapeCmd)
}

// setupLogging sends slog output to stderr; stdout carries command output
// and, for serve, the MCP protocol.
func setupLogging(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

// connectDaemon returns a daemon client. In debug mode the daemon runs
// in-process so its log output reaches the terminal.
func connectDaemon() (*daemon.Client, error) {
	socketPath := config.SocketPath()

	if !debug {
		return daemon.ConnectOrSpawn(socketPath)
	}

	client := daemon.NewClient(socketPath)
	if client.IsAvailable() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client.Shutdown(shutdownCtx)
		cancel()
		time.Sleep(200 * time.Millisecond)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	database, err := db.New(config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	srv := daemon.NewServer(cfg, database, socketPath)
	go func() {
		if err := srv.Start(context.Background()); err != nil {
			slog.Error("in-process daemon failed", "error", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		if client.IsAvailable() {
			return client, nil
		}
	}

	return nil, fmt.Errorf("in-process daemon did not start within 5 seconds")
}

func runServe(cmd *cobra.Command, args []string) {
	if debug {
		// start the in-process daemon before the MCP server looks for one
		if _, err := connectDaemon(); err != nil {
			slog.Error("failed to start daemon", "error", err)
			os.Exit(1)
		}
	}

	server, err := mcp.NewServer(config.SocketPath())
	if err != nil {
		slog.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error)
	go func() { errCh <- server.Run() }()

	if err := waitForSignal(errCh); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

func waitForSignal(errCh chan error) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		slog.Info("received signal", "signal", sig)
		return nil
	case err := <-errCh:
		return err
	}
}
