package merge

import (
	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/pages"
)

// Pages merges page trees generated independently for the same root.
// The result is a fresh tree with parent links pointing inside it; the
// input trees are left untouched.
func Pages(roots ...*pages.Page) (*pages.Page, error) {
	if len(roots) == 0 {
		return nil, illegal("", "nothing", "nothing", "no pages to merge")
	}
	acc := roots[0]
	for _, r := range roots[1:] {
		if acc.Key() != r.Key() {
			return nil, illegal(acc.Key(), "page "+acc.Name, "page "+r.Name, "roots differ")
		}
		var err error
		if acc, err = mergePage(acc, r); err != nil {
			return nil, err
		}
	}
	out := clonePage(acc)
	out.Parent = nil
	out.Relink()
	return out, nil
}

// pageKey groups sibling pages that land on the same file. A member page
// stands for every overload of its name, so two trees with different
// overload sets still merge into one page; other pages merge by ID set.
func pageKey(p *pages.Page) dri.Key {
	if p.Kind == pages.MemberPage {
		return dri.Key("member|" + p.Name)
	}
	return p.Key()
}

func mergePage(a, b *pages.Page) (*pages.Page, error) {
	if a.Kind != b.Kind {
		return nil, illegal(a.Key(), a.Kind.String(), b.Kind.String(), "page kinds differ")
	}
	children, err := Siblings(concat(a.Children, b.Children), pageKey, mergePage)
	if err != nil {
		return nil, err
	}
	content, err := Content(concat(a.Content, b.Content))
	if err != nil {
		return nil, err
	}
	return &pages.Page{
		Kind:      a.Kind,
		Name:      a.Name,
		IDs:       dri.Union(a.IDs, b.IDs),
		Platforms: sortedUnion(a.Platforms, b.Platforms),
		Content:   content,
		Children:  children,
	}, nil
}

func clonePage(p *pages.Page) *pages.Page {
	out := *p
	out.Children = make([]*pages.Page, len(p.Children))
	for i, c := range p.Children {
		out.Children[i] = clonePage(c)
	}
	return &out
}

// Content merges sibling content nodes. Composite nodes sharing a CID, type
// and attributes merge their children; leaves merge only when they render the same,
// so distinct per-platform leaves survive side by side.
func Content(nodes []*pages.Node) ([]*pages.Node, error) {
	return Siblings(nodes, contentKey, mergeNode)
}

func contentKey(n *pages.Node) dri.Key {
	k := string(n.CID.Key()) + "|" + n.Type.String()
	if n.Type.Composite() {
		// the node's own attributes (header level, styles, extras), not its children
		shallow := *n
		shallow.Children = nil
		k += "|" + shallow.Rendered()
	} else {
		k += "|" + n.Rendered()
	}
	return dri.Key(k)
}

func mergeNode(a, b *pages.Node) (*pages.Node, error) {
	out := *a
	out.Platforms = sortedUnion(a.Platforms, b.Platforms)
	out.CID = dri.CID{IDs: dri.Union(a.CID.IDs, b.CID.IDs), Kind: a.CID.Kind}
	if a.Type.Composite() {
		children, err := Content(concat(a.Children, b.Children))
		if err != nil {
			return nil, err
		}
		out.Children = children
	}
	return &out, nil
}
