package model

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jvmTree = `
target: jvm
module: core
packages:
  - name: com.example
    doc: Example package.
    classes:
      - name: Foo
        kind: class
        expect: true
        doc: A foo.
        functions:
          - name: bar
            receiver: kotlin.String
            return: kotlin.Unit
            parameters:
              - name: n
                type: kotlin.Int
        properties:
          - name: size
            type: kotlin.Int
      - name: Color
        kind: enum
        entries:
          - name: RED
    functions:
      - name: topLevel
        return: kotlin.Int
`

func writeTree(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBuildsIDs(t *testing.T) {
	m, err := Load(strings.NewReader(jvmTree), "jvm.yaml")
	require.NoError(t, err)

	assert.Equal(t, "core", m.Name)
	assert.True(t, m.ID.IsTopLevel())
	require.Len(t, m.Packages, 1)

	pkg := m.Packages[0]
	assert.Equal(t, "com.example/////", pkg.ID.String())
	assert.Equal(t, []string{"jvm"}, PlatformNames(pkg.Descriptors))
	assert.Equal(t, "Example package.", pkg.Descriptors[0].Doc)

	foo := pkg.Classes[0]
	assert.Equal(t, "com.example/Foo////", foo.ID.String())
	require.NotNil(t, foo.ExpectActual)
	assert.True(t, foo.ExpectActual.Expect)

	bar := foo.Functions[0]
	assert.Equal(t, "com.example/Foo/bar/kotlin.String#kotlin.Unit#kotlin.Int//", bar.ID.String())
	require.NotNil(t, bar.Receiver)
	assert.Equal(t, "com.example/Foo/bar/kotlin.String#kotlin.Unit#kotlin.Int/0/", bar.Receiver.ID.String())
	assert.Equal(t, "com.example/Foo/bar/kotlin.String#kotlin.Unit#kotlin.Int/1/", bar.Parameters[0].ID.String())

	assert.Equal(t, "com.example/Foo/size/#kotlin.Int#//", foo.Properties[0].ID.String())

	red := pkg.Classes[1].Entries[0]
	assert.True(t, red.ID.IsEnumEntry())
	assert.Equal(t, "entry", red.ClassKind)

	assert.Equal(t, "com.example//topLevel/#kotlin.Int#//", pkg.Functions[0].ID.String())
}

func TestLoadRejectsIncompleteTrees(t *testing.T) {
	_, err := Load(strings.NewReader("module: core\n"), "x.yaml")
	assert.ErrorContains(t, err, "missing target")

	_, err = Load(strings.NewReader("target: jvm\n"), "x.yaml")
	assert.ErrorContains(t, err, "missing module")

	_, err = Load(strings.NewReader("target: jvm\nmodule: m\nbogus: 1\n"), "x.yaml")
	assert.Error(t, err)
}

func TestLoadAllKeepsPathOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeTree(t, dir, "jvm.yaml", jvmTree),
		writeTree(t, dir, "js.yaml", strings.Replace(jvmTree, "target: jvm", "target: js", 1)),
	}

	trees, err := LoadAll(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Equal(t, "jvm", trees[0].Descriptors[0].Platform)
	assert.Equal(t, "js", trees[1].Descriptors[0].Platform)

	_, err = LoadAll(context.Background(), append(paths, filepath.Join(dir, "missing.yaml")))
	assert.Error(t, err)
}

func TestWalkAndEncode(t *testing.T) {
	m, err := Load(strings.NewReader(jvmTree), "jvm.yaml")
	require.NoError(t, err)

	counts := map[Kind]int{}
	Walk(m, func(d Documentable) bool {
		counts[d.Kind()]++
		return true
	})
	assert.Equal(t, 1, counts[ModuleKind])
	assert.Equal(t, 3, counts[ClassKind])
	assert.Equal(t, 2, counts[FunctionKind])
	assert.Equal(t, 2, counts[ParameterKind])

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))
	assert.Contains(t, buf.String(), "id: com.example/Foo////")
}
