package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcdickinson/docref/internal/docerr"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

const userAgent = "docref/0.1.0 (https://github.com/jcdickinson/docref)"

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 5
)

// Link configures one external documentation set.
type Link struct {
	// URL is the root of the hosted documentation.
	URL string
	// PackageList overrides the manifest location.
	PackageList string
	// JDKVersion hints the Javadoc era when the manifest names no format.
	JDKVersion int
	// Format overrides whatever the manifest declares.
	Format string
}

// BaseURL returns URL with a trailing slash.
func (l Link) BaseURL() string {
	if strings.HasSuffix(l.URL, "/") {
		return l.URL
	}
	return l.URL + "/"
}

// ManifestURL is PackageList, or the conventional manifest name under URL.
func (l Link) ManifestURL() string {
	if l.PackageList != "" {
		return l.PackageList
	}
	if l.JDKVersion >= 10 {
		return l.BaseURL() + "element-list"
	}
	return l.BaseURL() + "package-list"
}

// Store persists manifest bodies between processes.
type Store interface {
	Get(url string) (body []byte, fetchedAt time.Time, ok bool)
	Put(url string, body []byte) error
}

type LoaderOption func(*Loader)

func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// WithMaxRedirects bounds how many redirects one fetch may follow.
func WithMaxRedirects(n int) LoaderOption {
	return func(l *Loader) { l.maxRedirects = n }
}

// WithOffline refuses every manifest that is not a file: URL.
func WithOffline(offline bool) LoaderOption {
	return func(l *Loader) { l.offline = offline }
}

// WithStore serves manifests from s while they are younger than ttl.
func WithStore(s Store, ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		l.store = s
		l.ttl = ttl
	}
}

func WithLoaderLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

// WithObserver is called once per fetch attempt with the outcome.
func WithObserver(fn func(url, result string)) LoaderOption {
	return func(l *Loader) { l.observe = fn }
}

// Loader fetches and caches manifests.
type Loader struct {
	client       *http.Client
	timeout      time.Duration
	maxRedirects int
	offline      bool
	store        Store
	ttl          time.Duration
	log          *slog.Logger
	observe      func(url, result string)

	mu      sync.RWMutex
	cache   map[string]*Manifest
	group   singleflight.Group
	fetches atomic.Int64
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		log:          slog.Default(),
		observe:      func(string, string) {},
		cache:        make(map[string]*Manifest),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.client = &http.Client{
		Timeout: l.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > l.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", l.maxRedirects)
			}
			return nil
		},
	}
	return l
}

// Fetches reports how many network or disk reads have been made.
func (l *Loader) Fetches() int64 {
	return l.fetches.Load()
}

// Forget drops every cached manifest.
func (l *Loader) Forget() {
	l.mu.Lock()
	l.cache = make(map[string]*Manifest)
	l.mu.Unlock()
}

// Load is Fetch for callers that degrade instead of failing: errors are
// logged and reported as no manifest.
func (l *Loader) Load(ctx context.Context, link Link) *Manifest {
	m, err := l.Fetch(ctx, link)
	if err != nil {
		l.log.Warn("external documentation unavailable", "url", link.ManifestURL(), "error", err)
		return nil
	}
	return m
}

// Fetch returns the manifest for link. In offline mode a non-file URL
// yields (nil, nil) without touching the network.
func (l *Loader) Fetch(ctx context.Context, link Link) (*Manifest, error) {
	src := link.ManifestURL()
	u, err := url.Parse(src)
	if err != nil {
		return nil, &docerr.ManifestError{URL: src, Message: "bad url", Cause: err}
	}
	if l.offline && u.Scheme != "file" {
		l.log.Debug("offline, skipping external documentation", "url", src)
		return nil, nil
	}

	key := src + "|" + strconv.Itoa(link.JDKVersion) + "|" + link.Format
	l.mu.RLock()
	m, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		l.mu.RLock()
		m, ok := l.cache[key]
		l.mu.RUnlock()
		if ok {
			return m, nil
		}

		body, err := l.read(ctx, u)
		if err != nil {
			l.observe(src, "error")
			return nil, &docerr.ManifestError{URL: src, Message: "fetch failed", Cause: err}
		}
		m, err = ParseManifest(bytes.NewReader(body), link.BaseURL(), link.JDKVersion)
		if err != nil {
			l.observe(src, "invalid")
			return nil, err
		}
		if link.Format != "" {
			f, ok := FormatByName(link.Format)
			if !ok {
				return nil, &docerr.ManifestError{URL: src, Message: "unknown format override " + strconv.Quote(link.Format)}
			}
			m.Format = f
		}
		l.observe(src, "ok")

		l.mu.Lock()
		l.cache[key] = m
		l.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

func (l *Loader) read(ctx context.Context, u *url.URL) ([]byte, error) {
	if u.Scheme == "file" {
		l.fetches.Add(1)
		return os.ReadFile(u.Path)
	}

	src := u.String()
	if l.store != nil {
		if body, at, ok := l.store.Get(src); ok && time.Since(at) < l.ttl {
			l.log.Debug("manifest served from cache", "url", src, "age", time.Since(at).Round(time.Second))
			return body, nil
		}
	}

	l.fetches.Add(1)
	body, err := l.get(ctx, src)
	if err != nil {
		return nil, err
	}
	if l.store != nil {
		if err := l.store.Put(src, body); err != nil {
			l.log.Warn("failed to persist manifest", "url", src, "error", err)
		}
	}
	return body, nil
}

func (l *Loader) get(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "zstd, identity")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", src, resp.StatusCode)
	}

	var r io.Reader = io.LimitReader(resp.Body, maxManifestLen+1)
	if resp.Header.Get("Content-Encoding") == "zstd" {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = io.LimitReader(dec, maxManifestLen+1)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}
	if len(body) > maxManifestLen {
		return nil, fmt.Errorf("manifest %s exceeds %d bytes", src, maxManifestLen)
	}
	return body, nil
}
