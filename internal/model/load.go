package model

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jcdickinson/docref/internal/dri"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// treeFile is the on-disk shape of one target's documentable tree.
type treeFile struct {
	Target   string     `yaml:"target"`
	Module   string     `yaml:"module"`
	Doc      string     `yaml:"doc"`
	Packages []yamlNode `yaml:"packages"`
}

type yamlNode struct {
	Name        string     `yaml:"name"`
	Kind        string     `yaml:"kind"`
	Doc         string     `yaml:"doc"`
	Signature   string     `yaml:"signature"`
	Annotations []string   `yaml:"annotations"`
	Expect      bool       `yaml:"expect"`
	Actual      bool       `yaml:"actual"`
	Receiver    string     `yaml:"receiver"`
	Return      string     `yaml:"return"`
	Type        string     `yaml:"type"`
	Parameters  []yamlNode `yaml:"parameters"`
	Classes     []yamlNode `yaml:"classes"`
	Functions   []yamlNode `yaml:"functions"`
	Properties  []yamlNode `yaml:"properties"`
	Entries     []yamlNode `yaml:"entries"`
}

// Load decodes a single target tree. source is only used in errors.
func Load(r io.Reader, source string) (*Module, error) {
	var f treeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", source, err)
	}
	if f.Target == "" {
		return nil, fmt.Errorf("decoding %s: missing target", source)
	}
	if f.Module == "" {
		return nil, fmt.Errorf("decoding %s: missing module name", source)
	}

	b := builder{target: f.Target}
	m := &Module{
		ID:          dri.TopLevel,
		Name:        f.Module,
		Descriptors: b.descriptors(yamlNode{Doc: f.Doc}),
	}
	for _, n := range f.Packages {
		m.Packages = append(m.Packages, b.pkg(n))
	}
	return m, nil
}

// LoadFile reads one target tree from disk.
func LoadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tree: %w", err)
	}
	defer f.Close()
	return Load(f, path)
}

// LoadAll reads one tree per path concurrently. Trees are returned in path
// order; the first failure cancels the rest.
func LoadAll(ctx context.Context, paths []string) ([]*Module, error) {
	out := make([]*Module, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := LoadFile(path)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode writes a (merged) tree as YAML.
func Encode(w io.Writer, m *Module) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding module: %w", err)
	}
	return enc.Close()
}

type builder struct {
	target string
}

func (b builder) descriptors(n yamlNode) []PlatformDescriptor {
	return []PlatformDescriptor{{
		Platform:    b.target,
		Doc:         n.Doc,
		Signature:   n.Signature,
		Annotations: n.Annotations,
	}}
}

func (b builder) expectActual(n yamlNode) *ExpectActual {
	if !n.Expect && !n.Actual {
		return nil
	}
	ea := &ExpectActual{Expect: n.Expect}
	if n.Actual {
		ea.Actuals = []string{b.target}
	}
	return ea
}

func (b builder) pkg(n yamlNode) *Package {
	id := dri.FromDeclaration(dri.Declaration{Kind: dri.DeclPackage, Name: n.Name})
	scopes := []dri.Scope{{Kind: dri.PackageScope, Name: n.Name}}
	p := &Package{ID: id, Name: n.Name, Descriptors: b.descriptors(n)}
	for _, c := range n.Classes {
		p.Classes = append(p.Classes, b.class(c, scopes, dri.DeclClass))
	}
	for _, f := range n.Functions {
		p.Functions = append(p.Functions, b.function(f, scopes))
	}
	for _, pr := range n.Properties {
		p.Properties = append(p.Properties, b.property(pr, scopes))
	}
	return p
}

func (b builder) class(n yamlNode, scopes []dri.Scope, kind dri.DeclKind) *Class {
	id := dri.FromDeclaration(dri.Declaration{Kind: kind, Name: n.Name, Scopes: scopes})
	classKind := n.Kind
	if classKind == "" {
		classKind = "class"
		if kind == dri.DeclEnumEntry {
			classKind = "entry"
		}
	}
	c := &Class{
		ID:           id,
		Name:         n.Name,
		ClassKind:    classKind,
		Descriptors:  b.descriptors(n),
		ExpectActual: b.expectActual(n),
	}
	inner := append([]dri.Scope{{Kind: dri.ClassScope, Name: n.Name}}, scopes...)
	for _, cn := range n.Classes {
		c.Classes = append(c.Classes, b.class(cn, inner, dri.DeclClass))
	}
	for _, e := range n.Entries {
		c.Entries = append(c.Entries, b.class(e, inner, dri.DeclEnumEntry))
	}
	for _, f := range n.Functions {
		c.Functions = append(c.Functions, b.function(f, inner))
	}
	for _, p := range n.Properties {
		c.Properties = append(c.Properties, b.property(p, inner))
	}
	return c
}

func (b builder) function(n yamlNode, scopes []dri.Scope) *Function {
	decl := dri.Declaration{
		Kind:     dri.DeclFunction,
		Name:     n.Name,
		Scopes:   scopes,
		Receiver: n.Receiver,
		Return:   n.Return,
	}
	for _, p := range n.Parameters {
		decl.Params = append(decl.Params, p.Type)
	}
	f := &Function{
		ID:           dri.FromDeclaration(decl),
		Name:         n.Name,
		Return:       n.Return,
		Descriptors:  b.descriptors(n),
		ExpectActual: b.expectActual(n),
	}
	if n.Receiver != "" {
		f.Receiver = b.parameter(yamlNode{Name: "receiver", Type: n.Receiver}, &decl, dri.ReceiverPosition)
	}
	for i, p := range n.Parameters {
		f.Parameters = append(f.Parameters, b.parameter(p, &decl, i))
	}
	return f
}

func (b builder) property(n yamlNode, scopes []dri.Scope) *Property {
	decl := dri.Declaration{
		Kind:     dri.DeclProperty,
		Name:     n.Name,
		Scopes:   scopes,
		Receiver: n.Receiver,
		Return:   n.Type,
	}
	p := &Property{
		ID:           dri.FromDeclaration(decl),
		Name:         n.Name,
		Type:         n.Type,
		Descriptors:  b.descriptors(n),
		ExpectActual: b.expectActual(n),
	}
	if n.Receiver != "" {
		p.Receiver = b.parameter(yamlNode{Name: "receiver", Type: n.Receiver}, &decl, dri.ReceiverPosition)
	}
	return p
}

func (b builder) parameter(n yamlNode, owner *dri.Declaration, pos int) *Parameter {
	return &Parameter{
		ID:          dri.FromDeclaration(dri.Declaration{Kind: dri.DeclParameter, Name: n.Name, Owner: owner, Position: pos}),
		Name:        n.Name,
		Type:        n.Type,
		Descriptors: b.descriptors(n),
	}
}
