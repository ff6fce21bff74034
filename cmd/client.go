package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcdickinson/docref/internal/config"
	"github.com/jcdickinson/docref/internal/daemon"
	"github.com/jcdickinson/docref/internal/rpc"
	"github.com/spf13/cobra"
)

func mustConnect() *daemon.Client {
	client, err := connectDaemon()
	if err != nil {
		slog.Error("failed to connect to daemon", "error", err)
		os.Exit(1)
	}
	return client
}

var loadCmd = &cobra.Command{
	Use:   "load <module> <tree.yaml> [tree.yaml ...]",
	Short: "Load per-target trees into the daemon as one module",
	Long: `Load one documentable tree per target, merge them and register the result
with the daemon under the module name. Loading a module that is already loaded
merges the new targets into it unless --replace is given.`,
	Example: `  docref load core build/jvm.yaml build/js.yaml
  docref load core --module-dir core build/native.yaml
  docref load core --replace build/jvm.yaml`,
	Args: cobra.MinimumNArgs(2),
	Run:  runLoad,
}

var (
	loadModuleDir string
	loadExtension string
	loadReplace   bool
)

func init() {
	loadCmd.Flags().StringVar(&loadModuleDir, "module-dir", "", "directory of the module in the output (default: output.module)")
	loadCmd.Flags().StringVar(&loadExtension, "ext", "", "page extension (default: output.extension)")
	loadCmd.Flags().BoolVar(&loadReplace, "replace", false, "replace the loaded module instead of merging into it")
}

func runLoad(cmd *cobra.Command, args []string) {
	files := make([]string, 0, len(args)-1)
	for _, f := range args[1:] {
		abs, err := filepath.Abs(f)
		if err != nil {
			slog.Error("bad path", "path", f, "error", err)
			os.Exit(1)
		}
		files = append(files, abs)
	}

	moduleDir := loadModuleDir
	if moduleDir == "" {
		moduleDir = loadConfig().Output.Module
	}

	client := mustConnect()
	res, err := client.Load(context.Background(), rpc.LoadRequest{
		Module:    args[0],
		ModuleDir: moduleDir,
		Extension: loadExtension,
		Files:     files,
		Replace:   loadReplace,
	}, func(msg string) {
		fmt.Printf("  %s\n", msg)
	})
	if err != nil {
		slog.Error("load failed", "error", err)
		os.Exit(1)
	}
	if res.Error != "" {
		fmt.Printf("  %s: error: %s\n", res.Module, res.Error)
		os.Exit(1)
	}
	fmt.Printf("  %s: %d pages, %d locations [%s]\n", res.Module, res.Pages, res.Locations, strings.Join(res.Platforms, ", "))
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <module> <id>",
	Short: "Resolve an identifier to an output path",
	Example: `  docref resolve core 'com.example/Foo////'
  docref resolve core 'com.example/Foo/bar/#kotlin.Unit#kotlin.Int//' --from 'com.example/Foo////'
  docref resolve core 'java.util/List////'`,
	Args: cobra.ExactArgs(2),
	Run:  runResolve,
}

var (
	resolveFrom      string
	resolvePlatforms []string
)

func init() {
	resolveCmd.Flags().StringVar(&resolveFrom, "from", "", "ID of the page the link is written on")
	resolveCmd.Flags().StringSliceVar(&resolvePlatforms, "platform", nil, "only accept pages on these platforms (repeatable)")
}

func runResolve(cmd *cobra.Command, args []string) {
	client := mustConnect()
	resp, err := client.Resolve(context.Background(), rpc.ResolveRequest{
		Module:    args[0],
		ID:        args[1],
		Platforms: resolvePlatforms,
		From:      resolveFrom,
	})
	if err != nil {
		slog.Error("resolve failed", "error", err)
		os.Exit(1)
	}
	if !resp.Found {
		fmt.Fprintf(os.Stderr, "%s: not found\n", args[1])
		os.Exit(2)
	}
	fmt.Println(resp.Path)
}

var externalCmd = &cobra.Command{
	Use:   "external <id>",
	Short: "Resolve an identifier against external documentation",
	Example: `  docref external 'java.util/List////'
  docref external 'java.lang/String/length/#kotlin.Int#//'`,
	Args: cobra.ExactArgs(1),
	Run:  runExternal,
}

func runExternal(cmd *cobra.Command, args []string) {
	client := mustConnect()
	resp, err := client.External(context.Background(), rpc.ExternalRequest{ID: args[0]})
	if err != nil {
		slog.Error("external lookup failed", "error", err)
		os.Exit(1)
	}
	if !resp.Found {
		fmt.Fprintf(os.Stderr, "%s: no external documentation\n", args[0])
		os.Exit(2)
	}
	fmt.Println(resp.URL)
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <module> [file.md]",
	Short: "Replace dri: links in markdown with output paths",
	Long: `Read markdown from a file (or stdin) and replace every link destination of
the form dri:<ID> with the path of the page documenting the ID. Links that
cannot be placed are left untouched and listed on stderr.`,
	Example: `  docref rewrite core guide.md --from 'com.example/Foo////'
  cat guide.md | docref rewrite core --front-matter title=Guide`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runRewrite,
}

var (
	rewriteFrom        string
	rewritePlatforms   []string
	rewriteFrontMatter map[string]string
)

func init() {
	rewriteCmd.Flags().StringVar(&rewriteFrom, "from", "", "ID of the page the markdown is rendered on")
	rewriteCmd.Flags().StringSliceVar(&rewritePlatforms, "platform", nil, "only accept pages on these platforms (repeatable)")
	rewriteCmd.Flags().StringToStringVar(&rewriteFrontMatter, "front-matter", nil, "front matter fields (key=value)")
}

func runRewrite(cmd *cobra.Command, args []string) {
	var src []byte
	var err error
	if len(args) == 2 && args[1] != "-" {
		src, err = os.ReadFile(args[1])
	} else {
		src, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		slog.Error("failed to read markdown", "error", err)
		os.Exit(1)
	}

	client := mustConnect()
	resp, err := client.Rewrite(context.Background(), rpc.RewriteRequest{
		Module:      args[0],
		From:        rewriteFrom,
		Platforms:   rewritePlatforms,
		Markdown:    string(src),
		FrontMatter: rewriteFrontMatter,
	})
	if err != nil {
		slog.Error("rewrite failed", "error", err)
		os.Exit(1)
	}

	fmt.Print(resp.Markdown)
	for _, dest := range resp.Unresolved {
		slog.Warn("unresolved link", "destination", dest)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loaded modules and daemon state",
	Run:   runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) {
	client := mustConnect()
	resp, err := client.Status(context.Background())
	if err != nil {
		slog.Error("status failed", "error", err)
		os.Exit(1)
	}

	if statusJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(resp.Modules) == 0 {
		fmt.Println("no modules loaded")
	}
	for _, m := range resp.Modules {
		state := "persisted"
		if m.Loaded {
			state = fmt.Sprintf("loaded, %d pages", m.Pages)
		}
		dir := m.ModuleDir
		if dir == "" {
			dir = "."
		}
		fmt.Printf("  %s (%s) %d locations [%s]\n", m.Name, dir, m.Locations, state)
	}
	for _, m := range resp.Manifests {
		fmt.Printf("  external %s [%s, %d packages]\n", m.URL, m.Format, m.Packages)
	}
	fmt.Printf("  index builds: %d, manifest fetches: %d\n", resp.IndexBuilds, resp.Fetches)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Run:   runStop,
}

func runStop(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() {
		fmt.Println("daemon is not running")
		return
	}

	// the daemon exits right after answering, a reset connection still means it stopped
	if err := client.Shutdown(context.Background()); err != nil {
		slog.Debug("shutdown response", "error", err)
	}
	fmt.Println("daemon stopped")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}
