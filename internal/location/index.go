package location

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/pages"
	"golang.org/x/sync/singleflight"
)

type index struct {
	byID     map[dri.Key][]*pages.Page
	segments map[*pages.Page][]string
	// local holds segments relative to the module directory.
	local map[*pages.Page][]string
}

type cacheKey struct {
	root      *pages.Page
	moduleDir string
}

// IndexCache memoizes page indexes per tree. Entries are keyed by the root
// pointer, never by structural equality: two equal trees get two indexes.
type IndexCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*index
	group   singleflight.Group
	builds  atomic.Int64
}

func NewIndexCache() *IndexCache {
	return &IndexCache{entries: make(map[cacheKey]*index)}
}

// Builds reports how many indexes have been built.
func (c *IndexCache) Builds() int64 {
	return c.builds.Load()
}

// Evict drops every index built for root.
func (c *IndexCache) Evict(root *pages.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.root == root {
			delete(c.entries, k)
		}
	}
}

func (c *IndexCache) get(root *pages.Page, moduleDir string) *index {
	key := cacheKey{root, moduleDir}

	c.mu.RLock()
	idx, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return idx
	}

	v, _, _ := c.group.Do(fmt.Sprintf("%p|%s", root, moduleDir), func() (any, error) {
		c.mu.RLock()
		idx, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return idx, nil
		}

		idx = buildIndex(root, moduleDir)
		c.builds.Add(1)

		c.mu.Lock()
		c.entries[key] = idx
		c.mu.Unlock()
		return idx, nil
	})
	return v.(*index)
}

func buildIndex(root *pages.Page, moduleDir string) *index {
	idx := &index{
		byID:     make(map[dri.Key][]*pages.Page),
		segments: make(map[*pages.Page][]string),
		local:    make(map[*pages.Page][]string),
	}
	var base []string
	if moduleDir != "" {
		base = []string{moduleDir}
	}

	var visit func(p *pages.Page, dir []string)
	visit = func(p *pages.Page, dir []string) {
		childDir := dir
		var segs []string
		if p == root {
			segs = extend(dir, "index")
		} else {
			childDir = extend(dir, segmentName(p))
			segs = childDir
			if ownsDirectory(p) {
				segs = extend(childDir, "index")
			}
		}
		idx.segments[p] = segs
		idx.local[p] = segs[len(base):]
		for _, id := range p.IDs {
			k := id.Key()
			idx.byID[k] = append(idx.byID[k], p)
		}
		for _, c := range p.Children {
			visit(c, childDir)
		}
	}
	visit(root, base)
	return idx
}

// ownsDirectory reports whether p is written as the index of its own
// directory. Classlikes and packages always are, so a childless class never
// shares a file with a same-named member.
func ownsDirectory(p *pages.Page) bool {
	switch p.Kind {
	case pages.PackagePage, pages.ClassPage:
		return true
	}
	return len(p.Children) > 0
}

func segmentName(p *pages.Page) string {
	if p.Kind == pages.PackagePage {
		return p.Name
	}
	return EscapeFilename(p.Name)
}

func extend(dir []string, s string) []string {
	out := make([]string, len(dir), len(dir)+1)
	copy(out, dir)
	return append(out, s)
}
