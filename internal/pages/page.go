// Package pages models the renderable page tree and its content nodes.
package pages

import (
	"github.com/jcdickinson/docref/internal/dri"
)

// Kind enumerates the closed set of page variants.
type Kind int

const (
	ModulePage Kind = iota
	PackagePage
	ClassPage
	MemberPage
)

func (k Kind) String() string {
	switch k {
	case ModulePage:
		return "module"
	case PackagePage:
		return "package"
	case ClassPage:
		return "class"
	case MemberPage:
		return "member"
	}
	return "unknown"
}

// Page is a node in the output tree. A page documents one or more IDs (an
// overload group shares a page) on a set of platforms.
type Page struct {
	Kind      Kind
	Name      string
	IDs       []dri.ID
	Platforms []string
	Content   []*Node
	Children  []*Page

	// Parent is nil for the root and maintained by AddChild and Relink.
	Parent *Page
}

// Key is the order-independent key of the page's ID set.
func (p *Page) Key() dri.Key {
	return dri.SetKey(p.IDs)
}

// AddChild appends c and points it back at p.
func (p *Page) AddChild(c *Page) {
	c.Parent = p
	p.Children = append(p.Children, c)
}

// Relink resets parent back-references below p.
func (p *Page) Relink() {
	for _, c := range p.Children {
		c.Parent = p
		c.Relink()
	}
}

// Root follows parent links to the top of the tree.
func (p *Page) Root() *Page {
	for p.Parent != nil {
		p = p.Parent
	}
	return p
}

// Walk visits p and its descendants depth first.
func (p *Page) Walk(fn func(*Page)) {
	fn(p)
	for _, c := range p.Children {
		c.Walk(fn)
	}
}

// HasPlatform reports whether the page covers any of the requested
// platforms. An empty request or an unannotated page matches everything.
func (p *Page) HasPlatform(platforms []string) bool {
	if len(platforms) == 0 || len(p.Platforms) == 0 {
		return true
	}
	for _, want := range platforms {
		for _, have := range p.Platforms {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Count returns the number of pages in the tree rooted at p.
func (p *Page) Count() int {
	n := 0
	p.Walk(func(*Page) { n++ })
	return n
}
