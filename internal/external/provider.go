package external

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/location"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// Provider resolves IDs inside one external documentation set.
type Provider interface {
	Resolve(id dri.ID) (string, bool)
	Manifest() *Manifest
}

// NewProvider picks the Javadoc or Dokka layout from the manifest format.
func NewProvider(m *Manifest) Provider {
	if m.Format.Javadoc {
		return &JavadocProvider{m: m}
	}
	return &DokkaProvider{m: m}
}

func modulePart(m *Manifest, pkg string) (string, bool) {
	mod, ok := m.ModuleFor(pkg)
	if !ok {
		return "", false
	}
	if mod == "" {
		return "", true
	}
	return mod + "/", true
}

// JavadocProvider links into Javadoc output: package-summary pages, one
// page per class and anchors for members.
type JavadocProvider struct {
	m *Manifest
}

func (p *JavadocProvider) Manifest() *Manifest { return p.m }

func (p *JavadocProvider) Resolve(id dri.ID) (string, bool) {
	mod, ok := modulePart(p.m, id.Package)
	if !ok {
		return "", false
	}
	ext := p.m.Format.Extension
	base := p.m.URL + html.EscapeString(mod+strings.ReplaceAll(id.Package, ".", "/"))

	classes := id.ClassNames()
	if id.IsEnumEntry() && len(classes) > 0 {
		entry := classes[len(classes)-1]
		classes = classes[:len(classes)-1]
		return base + "/" + html.EscapeString(strings.Join(classes, ".")) + ext + "#" + html.EscapeString(entry), true
	}

	if len(classes) == 0 {
		link := base + "/package-summary" + ext
		if id.Callable != nil {
			link += "#" + html.EscapeString(p.m.Format.Anchor(*id.Callable))
		}
		return link, true
	}

	link := base + "/" + html.EscapeString(strings.Join(classes, ".")) + ext
	if id.Callable == nil {
		return link, true
	}
	c := *id.Callable
	if c.Name == "<init>" {
		c.Name = classes[len(classes)-1]
	}
	return link + "#" + html.EscapeString(p.m.Format.Anchor(c)), true
}

// DokkaProvider links into Dokka output, honouring relocations declared by
// the manifest.
type DokkaProvider struct {
	m *Manifest
}

func (p *DokkaProvider) Manifest() *Manifest { return p.m }

func (p *DokkaProvider) Resolve(id dri.ID) (string, bool) {
	mod, ok := modulePart(p.m, id.Package)
	if !ok {
		return "", false
	}
	if loc, ok := p.m.Locations[id.String()]; ok {
		return p.m.URL + mod + loc, true
	}
	return p.m.URL + mod + location.ExpectedLocationForID(id) + p.m.Format.Extension, true
}

// Resolver tries each configured documentation set in order.
type Resolver struct {
	providers []Provider
	log       *slog.Logger
}

// NewResolver loads every link concurrently. Links whose manifest is
// unavailable are skipped.
func NewResolver(ctx context.Context, loader *Loader, links []Link) *Resolver {
	loaded := make([]*Manifest, len(links))
	var g errgroup.Group
	for i, link := range links {
		g.Go(func() error {
			loaded[i] = loader.Load(ctx, link)
			return nil
		})
	}
	_ = g.Wait()

	r := &Resolver{log: loader.log}
	for _, m := range loaded {
		if m != nil {
			r.providers = append(r.providers, NewProvider(m))
		}
	}
	return r
}

// NewResolverFromProviders builds a resolver over already loaded sets.
func NewResolverFromProviders(providers ...Provider) *Resolver {
	return &Resolver{providers: providers, log: slog.Default()}
}

// Resolve implements location.ExternalResolver.
func (r *Resolver) Resolve(_ context.Context, id dri.ID) (string, bool) {
	for _, p := range r.providers {
		if url, ok := p.Resolve(id); ok {
			return url, true
		}
	}
	r.log.Debug("no external documentation for id", "id", id.String())
	return "", false
}

// Providers returns the documentation sets that loaded.
func (r *Resolver) Providers() []Provider {
	return r.providers
}
