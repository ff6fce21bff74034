package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jcdickinson/docref/internal/config"
	"github.com/jcdickinson/docref/internal/db"
	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/external"
	"github.com/jcdickinson/docref/internal/location"
	md "github.com/jcdickinson/docref/internal/markdown"
	"github.com/jcdickinson/docref/internal/rpc"
	"golang.org/x/sync/singleflight"
)

type Server struct {
	db         *db.DB
	store      *db.ManifestStore
	cfg        *config.Config
	socketPath string
	httpServer *http.Server
	listener   net.Listener
	metrics    *metrics

	mu         sync.Mutex
	expTimer   *time.Timer
	expiration time.Duration

	modules    map[string]*loadedModule
	modulesMu  sync.RWMutex
	loadGroup  singleflight.Group
	loadMu     sync.Mutex
	indexCache *location.IndexCache

	loader        *external.Loader
	resolver      *external.Resolver
	resolverGen   uint64
	resolverMu    sync.Mutex
	resolverGroup singleflight.Group
}

// NewServer wires a daemon around cfg. database may be nil, in which case
// manifests are only cached in memory and locations are not published.
func NewServer(cfg *config.Config, database *db.DB, socketPath string) *Server {
	expSec := cfg.Daemon.ExpirationSeconds
	if expSec <= 0 {
		expSec = 600
	}

	s := &Server{
		db:         database,
		cfg:        cfg,
		socketPath: socketPath,
		metrics:    newMetrics(),
		expiration: time.Duration(expSec) * time.Second,
		modules:    make(map[string]*loadedModule),
		indexCache: location.NewIndexCache(),
	}

	opts := []external.LoaderOption{
		external.WithTimeout(cfg.External.Timeout()),
		external.WithMaxRedirects(cfg.External.MaxRedirects),
		external.WithOffline(cfg.External.Offline),
		external.WithObserver(s.metrics.observeFetch),
	}
	if database != nil {
		s.store = db.NewManifestStore(database)
		opts = append(opts, external.WithStore(s.store, cfg.External.CacheTTL()))
	}
	s.loader = external.NewLoader(opts...)
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /load", s.withExpReset(s.handleLoad))
	mux.HandleFunc("POST /resolve", s.withExpReset(s.handleResolve))
	mux.HandleFunc("POST /external", s.withExpReset(s.handleExternal))
	mux.HandleFunc("POST /rewrite", s.withExpReset(s.handleRewrite))
	mux.HandleFunc("GET /status", s.withExpReset(s.handleStatus))
	mux.HandleFunc("POST /clear-cache", s.withExpReset(s.handleClearCache))
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.Handle("GET /metrics", s.metrics.handler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = listener

	s.httpServer = &http.Server{Handler: s.routes()}

	s.mu.Lock()
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	log.Printf("daemon: listening on %s (expires after %s of inactivity)", s.socketPath, s.expiration)

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("daemon: shutdown error: %v", err)
			errs = append(errs, err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("daemon: listener close error: %v", err)
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		log.Printf("daemon: socket remove error: %v", err)
		errs = append(errs, err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("daemon: db close error: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) expire() {
	log.Printf("daemon: expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	os.Exit(0)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req rpc.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	send := func(line rpc.ProgressLine) bool {
		if line.Message != "" {
			log.Printf("daemon: %s", line.Message)
		}
		if err := enc.Encode(line); err != nil {
			log.Printf("daemon: client disconnected: %v", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	progress := func(msg string) {
		send(rpc.ProgressLine{Type: "progress", Message: msg})
	}
	result := s.loadModule(r.Context(), req, progress)
	send(rpc.ProgressLine{Type: "result", Result: &result})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req rpc.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := dri.Parse(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.resolve(r.Context(), req, id)
	s.metrics.observeResolve(resp.Found)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resolve(ctx context.Context, req rpc.ResolveRequest, id dri.ID) rpc.ResolveResponse {
	m, ok := s.module(req.Module)
	if !ok {
		if s.db != nil {
			path, found, err := s.db.FindLocation(req.Module, id.String())
			if err != nil {
				log.Printf("daemon: location lookup failed: %v", err)
			} else if found {
				return rpc.ResolveResponse{Path: path, Found: true, Persisted: true}
			}
		}
		url, found := s.externalResolver(ctx).Resolve(ctx, id)
		return rpc.ResolveResponse{Path: url, Found: found}
	}

	from := m.contextPage(req.From, req.Platforms)
	path, found := m.provider.Resolve(ctx, id, req.Platforms, from)
	return rpc.ResolveResponse{Path: path, Found: found}
}

func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request) {
	var req rpc.ExternalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := dri.Parse(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, found := s.externalResolver(r.Context()).Resolve(r.Context(), id)
	s.metrics.observeResolve(found)
	writeJSON(w, http.StatusOK, rpc.ExternalResponse{URL: url, Found: found})
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rpc.RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, ok := s.module(req.Module)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("module %q is not loaded", req.Module))
		return
	}

	ctx := r.Context()
	from := m.contextPage(req.From, req.Platforms)
	out, unresolved := md.ResolveLinks(req.Markdown, func(id dri.ID) (string, bool) {
		path, ok := m.provider.Resolve(ctx, id, req.Platforms, from)
		if ok {
			s.metrics.rewrittenLinks.WithLabelValues("resolved").Inc()
		}
		return path, ok
	})
	s.metrics.rewrittenLinks.WithLabelValues("unresolved").Add(float64(len(unresolved)))

	out, err := md.AddFrontMatter(out, req.FrontMatter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.RewriteResponse{Markdown: out, Unresolved: unresolved})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := rpc.StatusResponse{
		IndexBuilds: s.indexCache.Builds(),
		Fetches:     s.loader.Fetches(),
	}

	s.modulesMu.RLock()
	loaded := make(map[string]bool, len(s.modules))
	for _, name := range s.moduleNamesLocked() {
		m := s.modules[name]
		loaded[name] = true
		resp.Modules = append(resp.Modules, rpc.ModuleStatus{
			Name:      m.name,
			ModuleDir: m.moduleDir,
			Loaded:    true,
			Pages:     m.root.Count(),
			Locations: m.locations,
		})
	}
	s.modulesMu.RUnlock()

	if s.db != nil {
		persisted, err := s.db.ListModules()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, pm := range persisted {
			if loaded[pm.Name] {
				continue
			}
			n, err := s.db.CountLocations(pm.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp.Modules = append(resp.Modules, rpc.ModuleStatus{
				Name:      pm.Name,
				ModuleDir: pm.ModuleDir,
				Locations: n,
			})
		}
	}

	s.resolverMu.Lock()
	resolver := s.resolver
	s.resolverMu.Unlock()
	if resolver != nil {
		for _, p := range resolver.Providers() {
			m := p.Manifest()
			resp.Manifests = append(resp.Manifests, rpc.ManifestStatus{
				URL:      m.URL,
				Format:   m.Format.Name,
				Packages: len(m.Packages()),
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.resetExternal()
	var cleared int64
	if s.store != nil {
		n, err := s.store.Clear()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		cleared = n
	}
	log.Printf("daemon: manifest cache cleared (%d entries)", cleared)
	writeJSON(w, http.StatusOK, rpc.ClearCacheResponse{Manifests: cleared})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		os.Exit(0)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
