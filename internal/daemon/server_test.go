package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jcdickinson/docref/internal/config"
	"github.com/jcdickinson/docref/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coreTree = `
target: TARGET
module: core
packages:
  - name: com.example
    doc: docs on TARGET
    classes:
      - name: Foo
        signature: class Foo
        functions:
          - name: bar
            return: kotlin.Unit
            parameters:
              - name: n
                type: kotlin.Int
`

const extraTree = `
target: jvm
module: extra
packages:
  - name: com.other
    classes:
      - name: Baz
`

const barID = "com.example/Foo/bar/#kotlin.Unit#kotlin.Int//"

func writeTree(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func testConfig() *config.Config {
	return &config.Config{
		Output:   config.OutputConfig{Extension: ".html"},
		External: config.ExternalConfig{Offline: true, TimeoutSeconds: 1, MaxRedirects: 5},
		Daemon:   config.DaemonConfig{ExpirationSeconds: 600},
	}
}

type testDaemon struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
	dir string
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	s := NewServer(testConfig(), nil, filepath.Join(t.TempDir(), "d.sock"))
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return &testDaemon{t: t, srv: s, ts: ts, dir: t.TempDir()}
}

func (d *testDaemon) post(path string, body any) *http.Response {
	d.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(d.t, err)
	resp, err := http.Post(d.ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(d.t, err)
	d.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (d *testDaemon) load(req rpc.LoadRequest) (rpc.ModuleResult, []string) {
	d.t.Helper()
	resp := d.post("/load", req)
	require.Equal(d.t, http.StatusOK, resp.StatusCode)

	var progress []string
	var result *rpc.ModuleResult
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var line rpc.ProgressLine
		require.NoError(d.t, dec.Decode(&line))
		if line.Type == "progress" {
			progress = append(progress, line.Message)
		} else {
			result = line.Result
		}
	}
	require.NotNil(d.t, result)
	return *result, progress
}

func (d *testDaemon) resolve(req rpc.ResolveRequest) rpc.ResolveResponse {
	d.t.Helper()
	resp := d.post("/resolve", req)
	require.Equal(d.t, http.StatusOK, resp.StatusCode)
	var out rpc.ResolveResponse
	require.NoError(d.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (d *testDaemon) tree(name, target string) string {
	return writeTree(d.t, d.dir, name, strings.ReplaceAll(coreTree, "TARGET", target))
}

func TestLoadMergesTargetsAndReloads(t *testing.T) {
	d := newTestDaemon(t)

	res, progress := d.load(rpc.LoadRequest{Module: "core", ModuleDir: "core", Files: []string{d.tree("jvm.yaml", "jvm")}})
	require.Empty(t, res.Error)
	assert.Equal(t, []string{"jvm"}, res.Platforms)
	assert.Equal(t, 4, res.Pages)
	assert.NotEmpty(t, progress)

	// a second load of the same module merges into it
	res, _ = d.load(rpc.LoadRequest{Module: "core", Files: []string{d.tree("js.yaml", "js")}})
	require.Empty(t, res.Error)
	assert.Equal(t, []string{"js", "jvm"}, res.Platforms)
	assert.Equal(t, 4, res.Pages)

	got := d.resolve(rpc.ResolveRequest{Module: "core", ID: barID})
	assert.True(t, got.Found)
	assert.Equal(t, "core/com.example/-foo/bar.html", got.Path, "module dir survives a merge reload")

	res, _ = d.load(rpc.LoadRequest{Module: "core", Replace: true, Files: []string{d.tree("native.yaml", "native")}})
	require.Empty(t, res.Error)
	assert.Equal(t, []string{"native"}, res.Platforms)
}

func TestLoadErrors(t *testing.T) {
	d := newTestDaemon(t)

	res, _ := d.load(rpc.LoadRequest{Module: "other", Files: []string{d.tree("jvm.yaml", "jvm")}})
	assert.Contains(t, res.Error, `documents module "core"`)

	res, _ = d.load(rpc.LoadRequest{Module: "core"})
	assert.Equal(t, "no tree files given", res.Error)

	res, _ = d.load(rpc.LoadRequest{Module: "core", Files: []string{filepath.Join(d.dir, "missing.yaml")}})
	assert.NotEmpty(t, res.Error)
}

func TestResolve(t *testing.T) {
	d := newTestDaemon(t)
	d.load(rpc.LoadRequest{Module: "core", ModuleDir: "core", Files: []string{d.tree("jvm.yaml", "jvm")}})
	d.load(rpc.LoadRequest{Module: "extra", ModuleDir: "extra", Files: []string{writeTree(t, d.dir, "extra.yaml", extraTree)}})

	tests := []struct {
		name  string
		req   rpc.ResolveRequest
		want  string
		found bool
	}{
		{"absolute", rpc.ResolveRequest{Module: "core", ID: barID}, "core/com.example/-foo/bar.html", true},
		{"from class", rpc.ResolveRequest{Module: "core", ID: barID, From: "com.example/Foo////"}, "bar.html", true},
		{"platform filter", rpc.ResolveRequest{Module: "core", ID: barID, Platforms: []string{"js"}}, "", false},
		{"peer module", rpc.ResolveRequest{Module: "core", ID: "com.other/Baz////"}, "extra/com.other/-baz/index.html", true},
		{"offline external", rpc.ResolveRequest{Module: "core", ID: "java.util/List////"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.resolve(tt.req)
			assert.Equal(t, tt.found, got.Found)
			assert.Equal(t, tt.want, got.Path)
		})
	}

	resp := d.post("/resolve", rpc.ResolveRequest{Module: "core", ID: "not-an-id"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRewrite(t *testing.T) {
	d := newTestDaemon(t)
	d.load(rpc.LoadRequest{Module: "core", Files: []string{d.tree("jvm.yaml", "jvm")}})

	resp := d.post("/rewrite", rpc.RewriteRequest{
		Module:      "core",
		From:        "com.example/Foo////",
		Markdown:    "Call [bar](dri:" + barID + ") not [x](dri:com.example/Gone////).",
		FrontMatter: map[string]string{"title": "Foo"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out rpc.RewriteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.True(t, strings.HasPrefix(out.Markdown, "---\ntitle: Foo\n---\n"))
	assert.Contains(t, out.Markdown, "[bar](bar.html)")
	assert.Equal(t, []string{"dri:com.example/Gone////"}, out.Unresolved)

	resp = d.post("/rewrite", rpc.RewriteRequest{Module: "nope", Markdown: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusAndMetrics(t *testing.T) {
	d := newTestDaemon(t)
	d.load(rpc.LoadRequest{Module: "core", Files: []string{d.tree("jvm.yaml", "jvm")}})
	d.resolve(rpc.ResolveRequest{Module: "core", ID: barID})

	resp, err := http.Get(d.ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status rpc.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Len(t, status.Modules, 1)
	assert.Equal(t, "core", status.Modules[0].Name)
	assert.True(t, status.Modules[0].Loaded)
	assert.Equal(t, 4, status.Modules[0].Locations)
	assert.Positive(t, status.IndexBuilds)
	assert.Zero(t, status.Fetches, "offline daemon fetched a manifest")

	mresp, err := http.Get(d.ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docref_resolve_total{result="found"} 1`)
	assert.Contains(t, string(body), "docref_modules_loaded 1")
}

func TestClientOverSocket(t *testing.T) {
	// unix socket paths are length limited, keep this one short
	dir, err := os.MkdirTemp("", "docref")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	sock := filepath.Join(dir, "d.sock")
	s := NewServer(testConfig(), nil, sock)
	go s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	c := NewClient(sock)
	require.Eventually(t, c.IsAvailable, 2*time.Second, 20*time.Millisecond)

	ctx := context.Background()
	tree := writeTree(t, dir, "jvm.yaml", strings.ReplaceAll(coreTree, "TARGET", "jvm"))
	var progress []string
	res, err := c.Load(ctx, rpc.LoadRequest{Module: "core", Files: []string{tree}}, func(msg string) {
		progress = append(progress, msg)
	})
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.NotEmpty(t, progress)

	got, err := c.Resolve(ctx, rpc.ResolveRequest{Module: "core", ID: barID})
	require.NoError(t, err)
	assert.Equal(t, "com.example/-foo/bar.html", got.Path)

	ext, err := c.External(ctx, rpc.ExternalRequest{ID: "java.util/List////"})
	require.NoError(t, err)
	assert.False(t, ext.Found)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Modules, 1)

	cleared, err := c.ClearCache(ctx)
	require.NoError(t, err)
	assert.Zero(t, cleared.Manifests)
}

func TestStatusDoesNotWaitForExternalFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startOnce, releaseOnce sync.Once
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startOnce.Do(func() { close(started) })
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		io.WriteString(w, "java.util\n")
	}))
	t.Cleanup(remote.Close)

	cfg := testConfig()
	cfg.External.Offline = false
	cfg.External.TimeoutSeconds = 5
	cfg.External.Links = []config.LinkConfig{{URL: remote.URL + "/docs/", JDKVersion: 8}}
	s := NewServer(cfg, nil, filepath.Join(t.TempDir(), "d.sock"))
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	status := func() rpc.StatusResponse {
		resp, err := http.Get(ts.URL + "/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		var out rpc.StatusResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	type result struct {
		ext rpc.ExternalResponse
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		resp, err := http.Post(ts.URL+"/external", "application/json", strings.NewReader(`{"id":"java.util/List////"}`))
		if err != nil {
			r.err = err
		} else {
			r.err = json.NewDecoder(resp.Body).Decode(&r.ext)
			resp.Body.Close()
		}
		done <- r
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("manifest fetch never started")
	}

	answered := make(chan rpc.StatusResponse, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/status")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		var out rpc.StatusResponse
		if json.NewDecoder(resp.Body).Decode(&out) == nil {
			answered <- out
		}
	}()
	select {
	case st := <-answered:
		assert.Empty(t, st.Manifests, "resolver published before its fetch finished")
	case <-time.After(time.Second):
		t.Fatal("status blocked behind the manifest fetch")
	}

	unblock()
	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("external lookup never finished")
	}
	require.NoError(t, r.err)
	assert.True(t, r.ext.Found)
	assert.Contains(t, r.ext.URL, "/docs/java/util/List.html")

	assert.Len(t, status().Manifests, 1)
}
