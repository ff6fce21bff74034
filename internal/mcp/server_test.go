package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcdickinson/docref/internal/config"
	"github.com/jcdickinson/docref/internal/daemon"
	"github.com/jcdickinson/docref/internal/rpc"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tree = `
target: jvm
module: core
packages:
  - name: com.example
    classes:
      - name: Foo
        functions:
          - name: bar
            return: kotlin.Unit
`

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func startDaemon(t *testing.T) (*Server, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "docref-mcp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := &config.Config{
		Output:   config.OutputConfig{Extension: ".html"},
		External: config.ExternalConfig{Offline: true, TimeoutSeconds: 1},
		Daemon:   config.DaemonConfig{ExpirationSeconds: 600},
	}
	sock := filepath.Join(dir, "d.sock")
	d := daemon.NewServer(cfg, nil, sock)
	go d.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Stop(ctx)
	})

	client := daemon.NewClient(sock)
	require.Eventually(t, client.IsAvailable, 2*time.Second, 20*time.Millisecond)
	return newServer(client), dir
}

func TestEscapeFilenameTool(t *testing.T) {
	res, err := handleEscapeFilename(context.Background(), call(map[string]any{"name": "MyClass"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "-my-class", text(t, res))

	res, err = handleEscapeFilename(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLoadAndResolveTools(t *testing.T) {
	s, dir := startDaemon(t)
	ctx := context.Background()

	path := filepath.Join(dir, "jvm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tree), 0644))

	res, err := s.handleLoadModule(ctx, call(map[string]any{
		"module": "core",
		"files":  []any{path},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var loaded rpc.ModuleResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &loaded))
	assert.Equal(t, []string{"jvm"}, loaded.Platforms)

	res, err = s.handleResolveLink(ctx, call(map[string]any{
		"module": "core",
		"id":     "com.example/Foo/bar/#kotlin.Unit#//",
		"from":   "com.example/Foo////",
	}))
	require.NoError(t, err)
	var resolved rpc.ResolveResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &resolved))
	assert.True(t, resolved.Found)
	assert.Equal(t, "bar.html", resolved.Path)

	res, err = s.handleRewriteMarkdown(ctx, call(map[string]any{
		"module":   "core",
		"markdown": "[Foo](dri:com.example/Foo////)",
	}))
	require.NoError(t, err)
	var rewritten rpc.RewriteResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &rewritten))
	assert.Contains(t, rewritten.Markdown, "(com.example/-foo/index.html)")
}

func TestToolArgumentErrors(t *testing.T) {
	s := newServer(daemon.NewClient(filepath.Join(t.TempDir(), "absent.sock")))
	ctx := context.Background()

	res, err := s.handleLoadModule(ctx, call(map[string]any{"module": "core"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleResolveLink(ctx, call(map[string]any{"module": "core"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleExternalLink(ctx, call(map[string]any{"id": "java.util/List////"}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "no daemon is listening")
}
