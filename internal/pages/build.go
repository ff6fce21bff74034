package pages

import (
	"sort"

	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/model"
)

// Build turns a merged documentable tree into a page tree. Functions and
// properties that share a name within one container share a member page.
func Build(m *model.Module) *Page {
	root := &Page{
		Kind:      ModulePage,
		Name:      m.Name,
		IDs:       []dri.ID{m.ID},
		Platforms: platforms(m.Descriptors),
	}
	root.Content = append(root.Content, heading(m.ID, m.Name))
	root.Content = append(root.Content, comments(m.ID, m.Descriptors)...)

	var rows []*Node
	for _, p := range m.Packages {
		root.AddChild(packagePage(p))
		rows = append(rows, Link(dri.NewCID(dri.KindLink, p.ID), p.Name, p.ID, platforms(p.Descriptors)...))
	}
	if len(rows) > 0 {
		root.Content = append(root.Content, Table(dri.NewCID(dri.KindPackages, m.ID), rows...))
	}
	return root
}

func packagePage(p *model.Package) *Page {
	page := &Page{
		Kind:      PackagePage,
		Name:      p.Name,
		IDs:       []dri.ID{p.ID},
		Platforms: platforms(p.Descriptors),
	}
	page.Content = append(page.Content, heading(p.ID, p.Name))
	page.Content = append(page.Content, comments(p.ID, p.Descriptors)...)
	addMembers(page, p.ID, p.Classes, p.Functions, p.Properties)
	return page
}

func classPage(c *model.Class) *Page {
	page := &Page{
		Kind:      ClassPage,
		Name:      c.Name,
		IDs:       []dri.ID{c.ID},
		Platforms: platforms(c.Descriptors),
	}
	page.Content = append(page.Content, heading(c.ID, c.Name))
	page.Content = append(page.Content, symbols(c.ID, c.Descriptors)...)
	page.Content = append(page.Content, comments(c.ID, c.Descriptors)...)
	addMembers(page, c.ID, append(append([]*model.Class(nil), c.Classes...), c.Entries...), c.Functions, c.Properties)
	return page
}

type member struct {
	name        string
	id          dri.ID
	descriptors []model.PlatformDescriptor
}

// addMembers adds a page per classlike and a page per member name. A
// function and a property with the same name share one member page, as do
// overloads; the functions and properties tables both link to it.
func addMembers(page *Page, owner dri.ID, classes []*model.Class, fns []*model.Function, props []*model.Property) {
	var classRows []*Node
	for _, c := range classes {
		page.AddChild(classPage(c))
		classRows = append(classRows, Link(dri.NewCID(dri.KindLink, c.ID), c.Name, c.ID, platforms(c.Descriptors)...))
	}
	if len(classRows) > 0 {
		page.Content = append(page.Content, Table(dri.NewCID(dri.KindClasslikes, owner), classRows...))
	}

	var fnMembers, propMembers []member
	for _, f := range fns {
		fnMembers = append(fnMembers, member{f.Name, f.ID, f.Descriptors})
	}
	for _, p := range props {
		propMembers = append(propMembers, member{p.Name, p.ID, p.Descriptors})
	}

	var order []string
	byName := make(map[string][]member)
	for _, m := range append(append([]member(nil), fnMembers...), propMembers...) {
		if _, ok := byName[m.name]; !ok {
			order = append(order, m.name)
		}
		byName[m.name] = append(byName[m.name], m)
	}

	for _, name := range order {
		page.AddChild(memberPage(name, byName[name]))
	}

	addMemberTable(page, owner, dri.KindFunctions, fnMembers)
	addMemberTable(page, owner, dri.KindProperties, propMembers)
}

func memberPage(name string, group []member) *Page {
	mp := &Page{Kind: MemberPage, Name: name}
	var descs []model.PlatformDescriptor
	for _, m := range group {
		mp.IDs = append(mp.IDs, m.id)
		descs = append(descs, m.descriptors...)
		mp.Content = append(mp.Content, symbols(m.id, m.descriptors)...)
		mp.Content = append(mp.Content, comments(m.id, m.descriptors)...)
	}
	mp.Platforms = platforms(descs)
	mp.Content = append([]*Node{heading(group[0].id, name)}, mp.Content...)
	return mp
}

// addMemberTable lists members of one kind, one row per name.
func addMemberTable(page *Page, owner dri.ID, kind dri.ContentKind, members []member) {
	if len(members) == 0 {
		return
	}
	var rows []*Node
	seen := make(map[string]bool)
	for _, m := range members {
		if seen[m.name] {
			continue
		}
		seen[m.name] = true

		var descs []model.PlatformDescriptor
		for _, o := range members {
			if o.name == m.name {
				descs = append(descs, o.descriptors...)
			}
		}
		// the row CID follows its link target
		rows = append(rows, Link(dri.NewCID(dri.KindLink, m.id), m.name, m.id, platforms(descs)...))
	}
	page.Content = append(page.Content, Table(dri.NewCID(kind, owner), rows...))
}

func heading(id dri.ID, name string) *Node {
	cid := dri.NewCID(dri.KindHeader, id)
	return Header(cid, 1, Text(dri.NewCID(dri.KindText, id), name))
}

func symbols(id dri.ID, ds []model.PlatformDescriptor) []*Node {
	var out []*Node
	for _, d := range ds {
		if d.Signature == "" {
			continue
		}
		out = append(out, Code(dri.NewCID(dri.KindSymbol, id), d.Signature, d.Platform))
	}
	return out
}

func comments(id dri.ID, ds []model.PlatformDescriptor) []*Node {
	var out []*Node
	for _, d := range ds {
		if d.Doc == "" {
			continue
		}
		out = append(out, Text(dri.NewCID(dri.KindComment, id), d.Doc, d.Platform))
	}
	return out
}

func platforms(ds []model.PlatformDescriptor) []string {
	seen := make(map[string]bool, len(ds))
	var out []string
	for _, d := range ds {
		if seen[d.Platform] {
			continue
		}
		seen[d.Platform] = true
		out = append(out, d.Platform)
	}
	sort.Strings(out)
	return out
}
