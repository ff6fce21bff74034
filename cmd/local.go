package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/jcdickinson/docref/internal/external"
	"github.com/jcdickinson/docref/internal/location"
	"github.com/jcdickinson/docref/internal/merge"
	"github.com/jcdickinson/docref/internal/model"
	"github.com/jcdickinson/docref/internal/pages"
	"github.com/spf13/cobra"
)

// localModule is a module merged in this process, without the daemon.
type localModule struct {
	tree     *model.Module
	root     *pages.Page
	provider *location.Provider
}

func buildLocal(ctx context.Context, files []string, moduleDir, ext string) (*localModule, error) {
	trees, err := model.LoadAll(ctx, files)
	if err != nil {
		return nil, err
	}
	merged, err := merge.Documentables(trees...)
	if err != nil {
		return nil, err
	}
	root := pages.Build(merged)
	slog.Debug("merged trees", "module", merged.Name, "targets", len(trees), "pages", root.Count())
	return &localModule{
		tree: merged,
		root: root,
		provider: location.New(root,
			location.WithExtension(ext),
			location.WithModuleDir(moduleDir),
		),
	}, nil
}

func outputWriter(path string) (io.Writer, func()) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		slog.Error("failed to create output", "path", path, "error", err)
		os.Exit(1)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			slog.Error("failed to write output", "path", path, "error", err)
			os.Exit(1)
		}
	}
}

var mergeCmd = &cobra.Command{
	Use:   "merge <tree.yaml> [tree.yaml ...]",
	Short: "Merge per-target trees into one tree",
	Long: `Merge documentable trees of the same module, one per target, into a single
tree where every declaration carries the union of its targets. With --pages the
resulting page paths are printed instead.`,
	Example: `  docref merge build/jvm.yaml build/js.yaml > merged.yaml
  docref merge --pages build/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	Run:  runMerge,
}

var (
	mergeOutput    string
	mergePages     bool
	mergeModuleDir string
)

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "write to a file instead of stdout")
	mergeCmd.Flags().BoolVar(&mergePages, "pages", false, "print ID and page path pairs")
	mergeCmd.Flags().StringVar(&mergeModuleDir, "module-dir", "", "directory of the module in the output (default: output.module)")
}

func runMerge(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	moduleDir := mergeModuleDir
	if moduleDir == "" {
		moduleDir = cfg.Output.Module
	}

	m, err := buildLocal(cmd.Context(), args, moduleDir, cfg.Output.Extension)
	if err != nil {
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}

	w, done := outputWriter(mergeOutput)
	defer done()

	if !mergePages {
		if err := model.Encode(w, m.tree); err != nil {
			slog.Error("failed to write tree", "error", err)
			os.Exit(1)
		}
		return
	}

	locations := m.provider.Locations()
	ids := make([]string, 0, len(locations))
	for id := range locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\n", id, locations[id])
	}
}

var manifestCmd = &cobra.Command{
	Use:   "manifest <module> <tree.yaml> [tree.yaml ...]",
	Short: "Write the package-list for a module",
	Long: `Merge the given trees and write the package-list other documentation sets
use to link into this module. Pages that do not sit where their ID predicts
are listed as location entries.`,
	Example: `  docref manifest core build/jvm.yaml build/js.yaml -o out/core/package-list`,
	Args:    cobra.MinimumNArgs(2),
	Run:     runManifest,
}

var (
	manifestOutput string
	manifestFormat string
)

func init() {
	manifestCmd.Flags().StringVarP(&manifestOutput, "output", "o", "", "write to a file instead of stdout")
	manifestCmd.Flags().StringVar(&manifestFormat, "format", "", "declared link format (default: output.format)")
}

func runManifest(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	format := manifestFormat
	if format == "" {
		format = cfg.Output.Format
	}
	if _, ok := external.FormatByName(format); !ok {
		slog.Error("unknown format", "format", format)
		os.Exit(1)
	}

	// relocations are relative to the module directory, so build without one
	m, err := buildLocal(cmd.Context(), args[1:], "", cfg.Output.Extension)
	if err != nil {
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}
	if m.tree.Name != args[0] {
		slog.Error("trees document another module", "want", args[0], "got", m.tree.Name)
		os.Exit(1)
	}

	w, done := outputWriter(manifestOutput)
	defer done()

	err = external.WriteManifest(w, external.ManifestSpec{
		Format:    format,
		Extension: cfg.Output.Extension,
		Locations: m.provider.Relocations(),
		Modules:   map[string][]string{args[0]: m.provider.Packages()},
	})
	if err != nil {
		slog.Error("failed to write manifest", "error", err)
		os.Exit(1)
	}
}

var escapeCmd = &cobra.Command{
	Use:   "escape <name> [name ...]",
	Short: "Show the path segment each name is written to",
	Example: `  docref escape MyClass index 'A<T>'`,
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range args {
			fmt.Println(location.EscapeFilename(name))
		}
	},
}
