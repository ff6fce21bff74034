package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/external"
	"github.com/jcdickinson/docref/internal/location"
	"github.com/jcdickinson/docref/internal/merge"
	"github.com/jcdickinson/docref/internal/model"
	"github.com/jcdickinson/docref/internal/pages"
	"github.com/jcdickinson/docref/internal/rpc"
)

// loadedModule is one merged output module held in memory.
type loadedModule struct {
	name      string
	moduleDir string
	root      *pages.Page
	provider  *location.Provider
	platforms []string
	locations int
}

// externalLink defers to whatever resolver the server currently holds, so
// module providers survive a cache clear.
type externalLink struct {
	s *Server
}

func (e externalLink) Resolve(ctx context.Context, id dri.ID) (string, bool) {
	return e.s.externalResolver(ctx).Resolve(ctx, id)
}

// externalResolver returns the current resolver, building it on first use.
// The build fetches manifests, so it runs outside resolverMu; concurrent
// callers share one build.
func (s *Server) externalResolver(ctx context.Context) *external.Resolver {
	s.resolverMu.Lock()
	r, gen := s.resolver, s.resolverGen
	s.resolverMu.Unlock()
	if r != nil {
		return r
	}

	v, _, _ := s.resolverGroup.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		// outlives the request that started the build
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.cfg.External.Timeout()+time.Second)
		defer cancel()
		built := external.NewResolver(fetchCtx, s.loader, s.cfg.External.ExternalLinks())
		slog.Info("external documentation loaded", "sets", len(built.Providers()))

		s.resolverMu.Lock()
		defer s.resolverMu.Unlock()
		// a cache clear during the build makes this one stale
		if s.resolverGen == gen {
			s.resolver = built
		}
		return built, nil
	})
	return v.(*external.Resolver)
}

func (s *Server) resetExternal() {
	s.resolverMu.Lock()
	s.resolver = nil
	s.resolverGen++
	s.resolverMu.Unlock()
	s.loader.Forget()
}

// peers snapshots the providers of every loaded module.
func (s *Server) peers() []*location.Provider {
	s.modulesMu.RLock()
	defer s.modulesMu.RUnlock()
	out := make([]*location.Provider, 0, len(s.modules))
	for _, name := range s.moduleNamesLocked() {
		out = append(out, s.modules[name].provider)
	}
	return out
}

func (s *Server) moduleNamesLocked() []string {
	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) module(name string) (*loadedModule, bool) {
	s.modulesMu.RLock()
	defer s.modulesMu.RUnlock()
	m, ok := s.modules[name]
	return m, ok
}

// loadModule reads the per-target trees of a request and registers the merged
// result. Concurrent loads of the same module are coalesced.
func (s *Server) loadModule(ctx context.Context, req rpc.LoadRequest, progress func(string)) rpc.ModuleResult {
	if req.Module == "" {
		return rpc.ModuleResult{Error: "missing module name"}
	}
	key := fmt.Sprintf("%s|%t|%s|%s|%s", req.Module, req.Replace, req.ModuleDir, req.Extension, strings.Join(req.Files, "\x00"))
	v, _, _ := s.loadGroup.Do(key, func() (interface{}, error) {
		// loads that merge into the same module must not interleave
		s.loadMu.Lock()
		defer s.loadMu.Unlock()
		return s.loadModuleWork(ctx, req, progress), nil
	})
	return v.(rpc.ModuleResult)
}

func (s *Server) loadModuleWork(ctx context.Context, req rpc.LoadRequest, progress func(string)) rpc.ModuleResult {
	start := time.Now()
	result := rpc.ModuleResult{Module: req.Module}

	if len(req.Files) == 0 {
		result.Error = "no tree files given"
		return result
	}

	progress(fmt.Sprintf("Loading %d target trees for %s", len(req.Files), req.Module))
	trees, err := model.LoadAll(ctx, req.Files)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	for i, t := range trees {
		if t.Name != req.Module {
			result.Error = fmt.Sprintf("%s documents module %q, not %q", req.Files[i], t.Name, req.Module)
			return result
		}
	}

	merged, err := merge.Documentables(trees...)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	root := pages.Build(merged)
	progress(fmt.Sprintf("Merged %s: %d pages", req.Module, root.Count()))

	previous, existed := s.module(req.Module)
	if existed && !req.Replace {
		root, err = merge.Pages(previous.root, root)
		if err != nil {
			result.Error = fmt.Sprintf("merging into loaded module: %v", err)
			return result
		}
		progress(fmt.Sprintf("Merged into loaded %s: %d pages", req.Module, root.Count()))
	}

	ext := req.Extension
	if ext == "" {
		ext = s.cfg.Output.Extension
	}
	moduleDir := req.ModuleDir
	if moduleDir == "" && existed {
		moduleDir = previous.moduleDir
	}

	provider := location.New(root,
		location.WithExtension(ext),
		location.WithModuleDir(moduleDir),
		location.WithExternal(externalLink{s}),
		location.WithPeers(s.peers),
		location.WithCache(s.indexCache),
		location.WithLogger(slog.Default()),
	)
	locations := provider.Locations()

	platforms := platformsOf(root)
	lm := &loadedModule{
		name:      req.Module,
		moduleDir: moduleDir,
		root:      root,
		provider:  provider,
		platforms: platforms,
		locations: len(locations),
	}

	s.modulesMu.Lock()
	s.modules[req.Module] = lm
	count := len(s.modules)
	s.modulesMu.Unlock()
	if existed {
		s.indexCache.Evict(previous.root)
	}

	if s.db != nil {
		if err := s.persistLocations(req.Module, moduleDir, locations); err != nil {
			slog.Warn("failed to persist locations", "module", req.Module, "error", err)
		} else {
			progress(fmt.Sprintf("Published %d locations for %s", len(locations), req.Module))
		}
	}

	s.metrics.modulesLoaded.Set(float64(count))
	s.metrics.pagesIndexed.WithLabelValues(req.Module).Set(float64(root.Count()))
	s.metrics.observeLoad(time.Since(start))

	result.Pages = root.Count()
	result.Locations = len(locations)
	result.Platforms = platforms
	return result
}

func (s *Server) persistLocations(name, moduleDir string, locations map[string]string) error {
	mod, err := s.db.UpsertModule(name, moduleDir)
	if err != nil {
		return err
	}
	return s.db.ReplaceLocations(mod.ID, locations)
}

func platformsOf(root *pages.Page) []string {
	seen := make(map[string]bool)
	root.Walk(func(p *pages.Page) {
		for _, pl := range p.Platforms {
			seen[pl] = true
		}
	})
	out := make([]string, 0, len(seen))
	for pl := range seen {
		out = append(out, pl)
	}
	sort.Strings(out)
	return out
}

// contextPage finds the page a link is written on. An empty or unknown from
// means the module root.
func (m *loadedModule) contextPage(from string, platforms []string) *pages.Page {
	if from == "" {
		return nil
	}
	id, ok := dri.TryParse(from)
	if !ok {
		slog.Debug("ignoring malformed context id", "from", from)
		return nil
	}
	page, ok := m.provider.Lookup(id, platforms)
	if !ok {
		return nil
	}
	return page
}
