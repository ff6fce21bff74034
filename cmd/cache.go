package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jcdickinson/docref/internal/config"
	"github.com/jcdickinson/docref/internal/daemon"
	"github.com/jcdickinson/docref/internal/db"
	"github.com/spf13/cobra"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Forget fetched external manifests",
	Long: `Drop every cached package-list so the next external lookup fetches it again.
A running daemon also forgets the manifests it holds in memory.`,
	Run: runClearCache,
}

func runClearCache(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if client.IsAvailable() {
		resp, err := client.ClearCache(context.Background())
		if err != nil {
			slog.Error("failed to clear cache", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%d cached manifests cleared\n", resp.Manifests)
		return
	}

	// the daemon holds the database open while it runs, so only touch it here
	database, err := db.New(config.DBPath())
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	n, err := db.NewManifestStore(database).Clear()
	if err != nil {
		slog.Error("failed to clear cache", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%d cached manifests cleared (daemon not running)\n", n)
}
