package location

import (
	"context"
	"sync"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jcdickinson/docref/internal/docerr"
	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/model"
	"github.com/jcdickinson/docref/internal/pages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MyClass", "-my-class"},
		{"index", "--index--"},
		{"con", "--con--"},
		{"A<T>", "-a-t-"},
		{"", "-empty-"},
		{"bar", "bar"},
		{"Index", "-index"},
		{"HTTPClient", "-h-t-t-p-client"},
		{"List<Map<K, V>>", "-list-map-k, -v-"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeFilename(tt.in))
		})
	}
}

type fixture struct {
	root, pkg, class, member, leaf *pages.Page
	classID, memberID, leafID      dri.ID
}

func newFixture() fixture {
	pkgID := dri.ID{Package: "pkg"}
	classID := pkgID.WithClass("Foo")
	memberID := classID.WithCallable(dri.Callable{Name: "bar"})
	leafID := pkgID.WithClass("Leaf")

	f := fixture{classID: classID, memberID: memberID, leafID: leafID}
	f.root = &pages.Page{Kind: pages.ModulePage, Name: "core", IDs: []dri.ID{dri.TopLevel}}
	f.pkg = &pages.Page{Kind: pages.PackagePage, Name: "pkg", IDs: []dri.ID{pkgID}}
	f.class = &pages.Page{Kind: pages.ClassPage, Name: "Foo", IDs: []dri.ID{classID}, Platforms: []string{"jvm"}}
	f.member = &pages.Page{Kind: pages.MemberPage, Name: "bar", IDs: []dri.ID{memberID}, Platforms: []string{"jvm"}}
	f.leaf = &pages.Page{Kind: pages.ClassPage, Name: "Leaf", IDs: []dri.ID{leafID}}
	f.root.AddChild(f.pkg)
	f.pkg.AddChild(f.class)
	f.pkg.AddChild(f.leaf)
	f.class.AddChild(f.member)
	return f
}

func TestResolveRelativePaths(t *testing.T) {
	f := newFixture()
	p := New(f.root)
	ctx := context.Background()

	tests := []struct {
		name string
		id   dri.ID
		from *pages.Page
		want string
	}{
		{"member absolute", f.memberID, nil, "pkg/-foo/bar.html"},
		{"member from class", f.memberID, f.class, "bar.html"},
		{"class from member", f.classID, f.member, "index.html"},
		{"package from member", dri.ID{Package: "pkg"}, f.member, "../index.html"},
		{"root from member", dri.TopLevel, f.member, "../../index.html"},
		{"leaf from member", f.leafID, f.member, "../-leaf/index.html"},
		{"member from leaf", f.memberID, f.leaf, "../-foo/bar.html"},
		{"member from root", f.memberID, f.root, "pkg/-foo/bar.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Resolve(ctx, tt.id, nil, tt.from)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePageAndOptions(t *testing.T) {
	f := newFixture()
	p := New(f.root, WithExtension(".md"), WithModuleDir("core"))

	got, err := p.ResolvePage(f.member, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "core/pkg/-foo/bar.md", got)

	got, err = p.ResolvePage(f.member, f.class, true)
	require.NoError(t, err)
	assert.Equal(t, "bar", got)

	got, err = p.ResolvePage(f.root, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "core/index.md", got)

	_, err = p.ResolvePage(&pages.Page{Name: "stray"}, nil, false)
	assert.ErrorIs(t, err, docerr.ErrLocationNotFound)
}

type fakeExternal struct {
	calls atomic.Int32
	urls  map[dri.Key]string
}

func (f *fakeExternal) Resolve(_ context.Context, id dri.ID) (string, bool) {
	f.calls.Add(1)
	url, ok := f.urls[id.Key()]
	return url, ok
}

func TestResolvePlatformSelectionAndExternalFallback(t *testing.T) {
	f := newFixture()
	stdlib := dri.ID{Package: "kotlin", ClassPath: "String"}
	ext := &fakeExternal{urls: map[dri.Key]string{
		stdlib.Key(): "https://kotlinlang.org/api/kotlin/-string/index.html",
	}}
	p := New(f.root, WithExternal(ext))
	ctx := context.Background()

	got, ok := p.Resolve(ctx, f.classID, []string{"js", "jvm"}, nil)
	require.True(t, ok)
	assert.Equal(t, "pkg/-foo/index.html", got)
	assert.Equal(t, int32(0), ext.calls.Load())

	_, ok = p.Resolve(ctx, f.classID, []string{"js"}, nil)
	assert.False(t, ok)
	assert.Equal(t, int32(1), ext.calls.Load())

	got, ok = p.Resolve(ctx, stdlib, nil, f.member)
	require.True(t, ok)
	assert.Equal(t, "https://kotlinlang.org/api/kotlin/-string/index.html", got)

	_, err := p.MustResolve(ctx, dri.ID{Package: "nowhere"}, []string{"jvm"}, nil)
	assert.ErrorIs(t, err, docerr.ErrLocationNotFound)
}

func TestResolveAcrossPeers(t *testing.T) {
	a := newFixture()
	b := newFixture()
	other := dri.ID{Package: "other"}
	b.root.AddChild(&pages.Page{Kind: pages.PackagePage, Name: "other", IDs: []dri.ID{other}})

	cache := NewIndexCache()
	var pa, pb *Provider
	peers := func() []*Provider { return []*Provider{pa, pb} }
	pa = New(a.root, WithModuleDir("a"), WithCache(cache), WithPeers(peers))
	pb = New(b.root, WithModuleDir("b"), WithCache(cache), WithPeers(peers))

	got, ok := pa.Resolve(context.Background(), other, nil, a.member)
	require.True(t, ok)
	assert.Equal(t, "../../../b/other/index.html", got)

	// a local hit wins over the peer
	got, ok = pa.Resolve(context.Background(), a.memberID, nil, a.class)
	require.True(t, ok)
	assert.Equal(t, "bar.html", got)
}

func TestIndexCacheKeyedByIdentity(t *testing.T) {
	cache := NewIndexCache()
	one := newFixture()
	two := newFixture()

	New(one.root, WithCache(cache)).Resolve(context.Background(), one.memberID, nil, nil)
	New(one.root, WithCache(cache)).Resolve(context.Background(), one.memberID, nil, nil)
	assert.Equal(t, int64(1), cache.Builds())

	New(two.root, WithCache(cache)).Resolve(context.Background(), two.memberID, nil, nil)
	assert.Equal(t, int64(2), cache.Builds())

	cache.Evict(one.root)
	New(one.root, WithCache(cache)).Resolve(context.Background(), one.memberID, nil, nil)
	assert.Equal(t, int64(3), cache.Builds())
}

func TestConcurrentResolveBuildsOnce(t *testing.T) {
	f := newFixture()
	cache := NewIndexCache()
	p := New(f.root, WithCache(cache))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := p.Resolve(context.Background(), f.memberID, nil, f.class)
			assert.True(t, ok)
			assert.Equal(t, "bar.html", got)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), cache.Builds())
}

func TestExpectedLocationForID(t *testing.T) {
	tests := []struct {
		id   dri.ID
		want string
	}{
		{dri.TopLevel, "index"},
		{dri.ID{Package: "pkg"}, "pkg/index"},
		{dri.ID{Package: "pkg", ClassPath: "Outer.Inner"}, "pkg/-outer/-inner/index"},
		{dri.ID{Package: "pkg", ClassPath: "Foo", Callable: &dri.Callable{Name: "bar"}}, "pkg/-foo/bar"},
		{dri.ID{Package: "pkg", Callable: &dri.Callable{Name: "index"}}, "pkg/--index--"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpectedLocationForID(tt.id))
		})
	}
}

func TestRelocationsAndLocations(t *testing.T) {
	f := newFixture()
	p := New(f.root, WithModuleDir("core"))

	// every built page sits where its ID predicts
	assert.Empty(t, p.Relocations())

	movedID := f.classID.WithCallable(dri.Callable{Name: "baz"})
	f.class.AddChild(&pages.Page{Kind: pages.MemberPage, Name: "qux", IDs: []dri.ID{movedID}})
	p = New(f.root, WithModuleDir("core"))
	assert.Equal(t, map[string]string{
		movedID.String(): "pkg/-foo/qux.html",
	}, p.Relocations())

	locs := p.Locations()
	assert.Equal(t, "core/pkg/-foo/bar.html", locs[f.memberID.String()])
	assert.Equal(t, "core/index.html", locs[dri.TopLevel.String()])
	assert.Equal(t, []string{"pkg"}, p.Packages())
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "a/b", RelativePath([]string{"a", "b"}, nil))
	assert.Equal(t, "../../x", RelativePath([]string{"x"}, []string{"a", "b", "c"}))
	assert.Equal(t, "c", RelativePath([]string{"a", "b", "c"}, []string{"a", "b", "d"}))
}

const clashTree = `
target: jvm
module: core
packages:
  - name: com.example
    classes:
      - name: Foo
    functions:
      - name: Foo
        return: com.example.Foo
      - name: size
        return: kotlin.Int
    properties:
      - name: size
        type: kotlin.Int
`

func TestBuiltPagesHaveUniquePaths(t *testing.T) {
	m, err := model.Load(strings.NewReader(clashTree), "jvm.yaml")
	require.NoError(t, err)
	root := pages.Build(m)
	p := New(root)

	seen := make(map[string]*pages.Page)
	byKind := make(map[pages.Kind]map[string]string)
	root.Walk(func(page *pages.Page) {
		path, err := p.ResolvePage(page, nil, false)
		require.NoError(t, err)
		if prev, ok := seen[path]; ok {
			t.Errorf("%s %q and %s %q share %s", prev.Kind, prev.Name, page.Kind, page.Name, path)
		}
		seen[path] = page
		if byKind[page.Kind] == nil {
			byKind[page.Kind] = make(map[string]string)
		}
		byKind[page.Kind][page.Name] = path
	})

	assert.Equal(t, "com.example/-foo/index.html", byKind[pages.ClassPage]["Foo"])
	assert.Equal(t, "com.example/-foo.html", byKind[pages.MemberPage]["Foo"])
	assert.Equal(t, "com.example/size.html", byKind[pages.MemberPage]["size"])

	var size *pages.Page
	root.Walk(func(page *pages.Page) {
		if page.Kind == pages.MemberPage && page.Name == "size" {
			assert.Nil(t, size, "size has more than one page")
			size = page
		}
	})
	require.NotNil(t, size)
	assert.Len(t, size.IDs, 2)
	assert.Empty(t, p.Relocations())
}
