package merge

import (
	"sort"
	"strings"
	"testing"

	"github.com/jcdickinson/docref/internal/docerr"
	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/model"
	"github.com/jcdickinson/docref/internal/pages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treeTemplate = `
target: TARGET
module: core
packages:
  - name: com.example
    doc: docs on TARGET
    classes:
      - name: Foo
        kind: class
        expect: EXPECT
        actual: ACTUAL
        functions:
          - name: bar
            return: kotlin.Unit
            parameters:
              - name: n
                type: kotlin.Int
      - name: Only_TARGET
`

func tree(t *testing.T, target string, expect, actual bool) *model.Module {
	t.Helper()
	src := strings.NewReplacer(
		"TARGET", target,
		"EXPECT", boolStr(expect),
		"ACTUAL", boolStr(actual),
	).Replace(treeTemplate)
	m, err := model.Load(strings.NewReader(src), target+".yaml")
	require.NoError(t, err)
	return m
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// platformsByID flattens a tree into ID key -> sorted platform names.
func platformsByID(m *model.Module) map[dri.Key][]string {
	out := make(map[dri.Key][]string)
	model.Walk(m, func(d model.Documentable) bool {
		names := model.PlatformNames(d.Platforms())
		names = append(out[d.DocID().Key()], names...)
		sort.Strings(names)
		out[d.DocID().Key()] = names
		return true
	})
	return out
}

func TestSiblingsKeepsFirstAppearanceOrder(t *testing.T) {
	key := func(s string) dri.Key { return dri.Key(s[:1]) }
	reduce := func(a, b string) (string, error) { return a + b[1:], nil }

	got, err := Siblings([]string{"b1", "a1", "b2", "c1", "a2"}, key, reduce)
	require.NoError(t, err)
	assert.Equal(t, []string{"b12", "a12", "c1"}, got)
}

func TestDocumentablesCombinesPlatforms(t *testing.T) {
	jvm := tree(t, "jvm", false, false)
	js := tree(t, "js", false, false)

	merged, err := Documentables(jvm, js)
	require.NoError(t, err)

	require.Len(t, merged.Packages, 1)
	pkg := merged.Packages[0]
	assert.Equal(t, []string{"js", "jvm"}, model.PlatformNames(pkg.Descriptors))

	var names []string
	for _, c := range pkg.Classes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Foo", "Only_jvm", "Only_js"}, names)

	foo := pkg.Classes[0]
	require.Len(t, foo.Functions, 1)
	assert.Equal(t, []string{"js", "jvm"}, model.PlatformNames(foo.Functions[0].Descriptors))
	require.Len(t, foo.Functions[0].Parameters, 1)
	assert.Equal(t, []string{"js", "jvm"}, model.PlatformNames(foo.Functions[0].Parameters[0].Descriptors))

	// inputs are not touched
	assert.Equal(t, []string{"jvm"}, model.PlatformNames(jvm.Packages[0].Descriptors))
}

func TestDocumentablesAssociative(t *testing.T) {
	a := tree(t, "jvm", true, false)
	b := tree(t, "js", false, true)
	c := tree(t, "native", false, true)

	ab, err := Documentables(a, b)
	require.NoError(t, err)
	left, err := Documentables(ab, c)
	require.NoError(t, err)

	bc, err := Documentables(b, c)
	require.NoError(t, err)
	right, err := Documentables(a, bc)
	require.NoError(t, err)

	assert.Equal(t, left, right)
}

func TestDocumentablesOrderIndependentDescriptors(t *testing.T) {
	a := tree(t, "jvm", false, false)
	b := tree(t, "js", false, false)

	ab, err := Documentables(a, b)
	require.NoError(t, err)
	ba, err := Documentables(b, a)
	require.NoError(t, err)
	assert.Equal(t, platformsByID(ab), platformsByID(ba))
	assert.Equal(t, ab.Packages[0].Descriptors, ba.Packages[0].Descriptors)
}

func TestDocumentablesIdempotent(t *testing.T) {
	a := tree(t, "jvm", false, false)
	aa, err := Documentables(a, a)
	require.NoError(t, err)
	assert.Equal(t, platformsByID(a), platformsByID(aa))
}

func TestExpectActual(t *testing.T) {
	common := tree(t, "common", true, false)
	jvm := tree(t, "jvm", false, true)
	js := tree(t, "js", false, true)
	plain := tree(t, "linux", false, false)

	merged, err := Documentables(common, jvm, js, plain)
	require.NoError(t, err)

	ea := merged.Packages[0].Classes[0].ExpectActual
	require.NotNil(t, ea)
	assert.True(t, ea.Expect)
	assert.Equal(t, []string{"js", "jvm"}, ea.Actuals)

	onlyOne, err := Documentables(plain, common)
	require.NoError(t, err)
	assert.Equal(t, common.Packages[0].Classes[0].ExpectActual, onlyOne.Packages[0].Classes[0].ExpectActual)
}

func TestDocumentablesIllegalState(t *testing.T) {
	a := tree(t, "jvm", false, false)
	b := tree(t, "js", false, false)
	b.Packages[0].Classes[0].ClassKind = "interface"

	_, err := Documentables(a, b)
	assert.ErrorIs(t, err, docerr.ErrIllegalState)

	other := tree(t, "js", false, false)
	other.Name = "other"
	_, err = Documentables(a, other)
	assert.ErrorIs(t, err, docerr.ErrIllegalState)

	_, err = Documentables()
	assert.ErrorIs(t, err, docerr.ErrIllegalState)
}

func TestPagesMergeRelinksParents(t *testing.T) {
	jvm := pages.Build(tree(t, "jvm", false, false))
	js := pages.Build(tree(t, "js", false, false))

	root, err := Pages(jvm, js)
	require.NoError(t, err)

	assert.Equal(t, []string{"js", "jvm"}, root.Platforms)
	require.Len(t, root.Children, 1)
	pkg := root.Children[0]
	assert.Same(t, root, pkg.Parent)

	var names []string
	for _, c := range pkg.Children {
		names = append(names, c.Name)
		assert.Same(t, pkg, c.Parent)
		c.Walk(func(p *pages.Page) {
			for _, child := range p.Children {
				assert.Same(t, p, child.Parent)
			}
		})
	}
	assert.Equal(t, []string{"Foo", "Only_jvm", "Only_js"}, names)

	// per-platform comments survive side by side
	var comments []string
	for _, n := range pkg.Content {
		if n.CID.Kind == dri.KindComment {
			comments = append(comments, n.Text)
		}
	}
	assert.Equal(t, []string{"docs on jvm", "docs on js"}, comments)

	// the inputs keep their own parents
	assert.Same(t, jvm, jvm.Children[0].Parent)
	assert.Same(t, js, js.Children[0].Parent)
}

func TestPagesKindMismatch(t *testing.T) {
	id := dri.ID{Package: "p"}
	a := &pages.Page{Kind: pages.PackagePage, Name: "p", IDs: []dri.ID{id}}
	b := &pages.Page{Kind: pages.ClassPage, Name: "p", IDs: []dri.ID{id}}

	_, err := Pages(a, b)
	assert.ErrorIs(t, err, docerr.ErrIllegalState)

	_, err = Pages(a, &pages.Page{Kind: pages.PackagePage, IDs: []dri.ID{{Package: "q"}}})
	assert.ErrorIs(t, err, docerr.ErrIllegalState)
}

func TestContentDeduplicatesLeaves(t *testing.T) {
	id := dri.ID{Package: "p", ClassPath: "C"}
	sym := dri.NewCID(dri.KindSymbol, id)
	table := dri.NewCID(dri.KindTable, id)

	nodes := []*pages.Node{
		pages.Code(sym, "class C", "jvm"),
		pages.Code(sym, "class C", "js"),
		pages.Code(sym, "expect class C", "common"),
		pages.Table(table, pages.Text(dri.NewCID(dri.KindText, id), "row", "jvm")),
		pages.Table(table, pages.Text(dri.NewCID(dri.KindText, id), "row", "js")),
	}

	got, err := Content(nodes)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "class C", got[0].Text)
	assert.Equal(t, []string{"js", "jvm"}, got[0].Platforms)
	assert.Equal(t, "expect class C", got[1].Text)

	require.Len(t, got[2].Children, 1)
	assert.Equal(t, []string{"js", "jvm"}, got[2].Children[0].Platforms)

	again, err := Content(got)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

const overloadTree = `
target: TARGET
module: core
packages:
  - name: com.example
    classes:
      - name: Foo
        functions:
          - name: bar
            return: kotlin.Unit
            parameters:
              - name: n
                type: kotlin.Int
EXTRA`

const stringOverload = `          - name: bar
            return: kotlin.Unit
            parameters:
              - name: s
                type: kotlin.String
`

func TestPagesMergeMemberPagesAcrossOverloadSets(t *testing.T) {
	load := func(target, extra string) *pages.Page {
		src := strings.NewReplacer("TARGET", target, "EXTRA", extra).Replace(overloadTree)
		m, err := model.Load(strings.NewReader(src), target+".yaml")
		require.NoError(t, err)
		return pages.Build(m)
	}
	jvm := load("jvm", stringOverload)
	js := load("js", "")

	for _, order := range [][]*pages.Page{{jvm, js}, {js, jvm}} {
		root, err := Pages(order...)
		require.NoError(t, err)

		foo := root.Children[0].Children[0]
		require.Equal(t, "Foo", foo.Name)
		require.Len(t, foo.Children, 1, "one page per member name")

		bar := foo.Children[0]
		assert.Equal(t, "bar", bar.Name)
		assert.Len(t, bar.IDs, 2)
		assert.Equal(t, []string{"js", "jvm"}, bar.Platforms)

		var rows int
		for _, n := range foo.Content {
			if n.CID.Kind == dri.KindFunctions {
				rows += len(n.Children)
			}
		}
		assert.Equal(t, 1, rows)
	}
}

func TestContentKeepsHeadersOfDifferentLevels(t *testing.T) {
	id := dri.ID{Package: "p", ClassPath: "C"}
	cid := dri.NewCID(dri.KindHeader, id)
	title := func() *pages.Node { return pages.Text(dri.NewCID(dri.KindText, id), "C") }

	h1 := pages.Header(cid, 1, title())
	h2 := pages.Header(cid, 2, title())

	for _, nodes := range [][]*pages.Node{{h1, h2}, {h2, h1}} {
		got, err := Content(nodes)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.NotEqual(t, got[0].Level, got[1].Level)
	}

	got, err := Content([]*pages.Node{h1, pages.Header(cid, 1, title())})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestContentRespectsExtra(t *testing.T) {
	id := dri.ID{Package: "p", ClassPath: "C"}
	cid := dri.NewCID(dri.KindComment, id)

	got, err := Content([]*pages.Node{
		pages.Text(cid, "body", "jvm").WithExtra("anchor", "a"),
		pages.Text(cid, "body", "js").WithExtra("anchor", "b"),
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = Content([]*pages.Node{
		pages.Text(cid, "body", "jvm").WithExtra("anchor", "a"),
		pages.Text(cid, "body", "js").WithExtra("anchor", "a"),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"js", "jvm"}, got[0].Platforms)
}
