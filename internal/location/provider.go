// Package location maps identifiers to output paths within a page tree.
package location

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jcdickinson/docref/internal/docerr"
	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/pages"
)

const DefaultExtension = ".html"

// ExternalResolver resolves IDs that live outside the local tree.
type ExternalResolver interface {
	Resolve(ctx context.Context, id dri.ID) (string, bool)
}

type Option func(*Provider)

// WithExtension sets the file extension appended to resolved paths.
func WithExtension(ext string) Option {
	return func(p *Provider) { p.ext = ext }
}

// WithModuleDir places the tree under dir in the output.
func WithModuleDir(dir string) Option {
	return func(p *Provider) { p.moduleDir = dir }
}

func WithExternal(r ExternalResolver) Option {
	return func(p *Provider) { p.external = r }
}

// WithPeers supplies providers for sibling modules. They are consulted after
// the local tree and before the external resolver.
func WithPeers(peers func() []*Provider) Option {
	return func(p *Provider) { p.peers = peers }
}

// WithCache shares an index cache between providers.
func WithCache(c *IndexCache) Option {
	return func(p *Provider) { p.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider resolves IDs against one page tree.
type Provider struct {
	root      *pages.Page
	ext       string
	moduleDir string
	external  ExternalResolver
	peers     func() []*Provider
	cache     *IndexCache
	log       *slog.Logger
}

func New(root *pages.Page, opts ...Option) *Provider {
	p := &Provider{
		root: root,
		ext:  DefaultExtension,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = NewIndexCache()
	}
	return p
}

func (p *Provider) Root() *pages.Page { return p.root }

func (p *Provider) ModuleDir() string { return p.moduleDir }

func (p *Provider) index() *index {
	return p.cache.get(p.root, p.moduleDir)
}

// Lookup finds the local page for id on any of the requested platforms.
func (p *Provider) Lookup(id dri.ID, platforms []string) (*pages.Page, bool) {
	for _, page := range p.index().byID[id.Key()] {
		if page.HasPlatform(platforms) {
			return page, true
		}
	}
	return nil, false
}

func (p *Provider) locate(id dri.ID, platforms []string) ([]string, bool) {
	page, ok := p.Lookup(id, platforms)
	if !ok {
		return nil, false
	}
	return p.index().segments[page], true
}

// Resolve returns the path of id relative to from, or an absolute path from
// the output root when from is nil. IDs outside the tree go to peer modules
// and then to the external resolver.
func (p *Provider) Resolve(ctx context.Context, id dri.ID, platforms []string, from *pages.Page) (string, bool) {
	if segs, ok := p.locate(id, platforms); ok {
		return p.relative(segs, from, false), true
	}
	if p.peers != nil {
		for _, peer := range p.peers() {
			if peer == p {
				continue
			}
			if segs, ok := peer.locate(id, platforms); ok {
				return p.relative(segs, from, false), true
			}
		}
	}
	if p.external != nil {
		if url, ok := p.external.Resolve(ctx, id); ok {
			return url, true
		}
	}
	p.log.Debug("unresolved link", "id", id.String(), "platforms", platforms)
	return "", false
}

// MustResolve is Resolve for call sites that need a hard failure.
func (p *Provider) MustResolve(ctx context.Context, id dri.ID, platforms []string, from *pages.Page) (string, error) {
	path, ok := p.Resolve(ctx, id, platforms, from)
	if !ok {
		return "", &docerr.LocationNotFoundError{ID: id.String(), Platforms: platforms}
	}
	return path, nil
}

// ResolvePage returns the path of a page of this tree relative to from.
func (p *Provider) ResolvePage(page, from *pages.Page, skipExtension bool) (string, error) {
	segs, ok := p.index().segments[page]
	if !ok {
		id := "<no ids>"
		if len(page.IDs) > 0 {
			id = page.IDs[0].String()
		}
		return "", &docerr.LocationNotFoundError{ID: id}
	}
	return p.relative(segs, from, skipExtension), nil
}

func (p *Provider) relative(target []string, from *pages.Page, skipExtension bool) string {
	var base []string
	if from != nil {
		segs, ok := p.index().segments[from]
		if ok {
			base = segs
		} else {
			p.log.Debug("context page is not part of the tree", "page", from.Name)
		}
	}
	path := RelativePath(target, base)
	if !skipExtension {
		path += p.ext
	}
	return path
}

// RelativePath walks from the directory of the from page to target.
func RelativePath(target, from []string) string {
	var dir []string
	if len(from) > 0 {
		dir = from[:len(from)-1]
	}
	common := 0
	for common < len(dir) && common < len(target) && dir[common] == target[common] {
		common++
	}
	parts := make([]string, 0, len(dir)-common+len(target)-common)
	for i := common; i < len(dir); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, target[common:]...)
	return strings.Join(parts, "/")
}

// ExpectedLocationForID guesses the location of id without an index:
// package, escaped class path, then the escaped callable or "index".
func ExpectedLocationForID(id dri.ID) string {
	var segs []string
	if id.Package != "" {
		segs = append(segs, id.Package)
	}
	for _, c := range id.ClassNames() {
		segs = append(segs, EscapeFilename(c))
	}
	if id.Callable != nil {
		segs = append(segs, EscapeFilename(id.Callable.Name))
	} else {
		segs = append(segs, "index")
	}
	return strings.Join(segs, "/")
}

// Relocations lists IDs whose page does not sit where
// ExpectedLocationForID would put it. Paths are relative to the module
// directory and carry the extension.
func (p *Provider) Relocations() map[string]string {
	idx := p.index()
	out := make(map[string]string)
	p.root.Walk(func(page *pages.Page) {
		if page == p.root {
			return
		}
		actual := strings.Join(idx.local[page], "/")
		for _, id := range page.IDs {
			if actual != ExpectedLocationForID(id) {
				out[id.String()] = actual + p.ext
			}
		}
	})
	return out
}

// Locations lists the absolute path of every ID in the tree.
func (p *Provider) Locations() map[string]string {
	idx := p.index()
	out := make(map[string]string)
	p.root.Walk(func(page *pages.Page) {
		path := strings.Join(idx.segments[page], "/") + p.ext
		for _, id := range page.IDs {
			if _, ok := out[id.String()]; !ok {
				out[id.String()] = path
			}
		}
	})
	return out
}

// Packages lists the package names documented by the tree.
func (p *Provider) Packages() []string {
	var out []string
	p.root.Walk(func(page *pages.Page) {
		if page.Kind == pages.PackagePage {
			out = append(out, page.Name)
		}
	})
	return out
}
