// Package model holds the documentable tree produced per build target and
// consumed by the merge engine.
package model

import (
	"github.com/jcdickinson/docref/internal/dri"
)

// Kind enumerates the closed set of documentable variants.
type Kind int

const (
	ModuleKind Kind = iota
	PackageKind
	ClassKind
	FunctionKind
	PropertyKind
	ParameterKind
)

func (k Kind) String() string {
	switch k {
	case ModuleKind:
		return "module"
	case PackageKind:
		return "package"
	case ClassKind:
		return "class"
	case FunctionKind:
		return "function"
	case PropertyKind:
		return "property"
	case ParameterKind:
		return "parameter"
	}
	return "unknown"
}

// Documentable is implemented by every node of the tree. The set of
// implementations is closed.
type Documentable interface {
	DocID() dri.ID
	DocName() string
	Kind() Kind
	Platforms() []PlatformDescriptor
	documentable()
}

// PlatformDescriptor is the per-target payload attached to a node.
type PlatformDescriptor struct {
	Platform    string   `yaml:"platform" json:"platform"`
	Doc         string   `yaml:"doc,omitempty" json:"doc,omitempty"`
	Signature   string   `yaml:"signature,omitempty" json:"signature,omitempty"`
	Annotations []string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ExpectActual links an expect declaration to its per-platform actuals.
type ExpectActual struct {
	Expect  bool     `yaml:"expect,omitempty" json:"expect,omitempty"`
	Actuals []string `yaml:"actuals,omitempty" json:"actuals,omitempty"`
}

type Module struct {
	ID          dri.ID               `yaml:"id"`
	Name        string               `yaml:"name"`
	Packages    []*Package           `yaml:"packages,omitempty"`
	Descriptors []PlatformDescriptor `yaml:"platforms,omitempty"`
}

type Package struct {
	ID          dri.ID               `yaml:"id"`
	Name        string               `yaml:"name"`
	Classes     []*Class             `yaml:"classes,omitempty"`
	Functions   []*Function          `yaml:"functions,omitempty"`
	Properties  []*Property          `yaml:"properties,omitempty"`
	Descriptors []PlatformDescriptor `yaml:"platforms,omitempty"`
}

// Class covers every classlike: classes, interfaces, objects, enums and
// enum entries, told apart by ClassKind.
type Class struct {
	ID           dri.ID               `yaml:"id"`
	Name         string               `yaml:"name"`
	ClassKind    string               `yaml:"kind,omitempty"`
	Classes      []*Class             `yaml:"classes,omitempty"`
	Functions    []*Function          `yaml:"functions,omitempty"`
	Properties   []*Property          `yaml:"properties,omitempty"`
	Entries      []*Class             `yaml:"entries,omitempty"`
	Descriptors  []PlatformDescriptor `yaml:"platforms,omitempty"`
	ExpectActual *ExpectActual        `yaml:"expectActual,omitempty"`
}

type Function struct {
	ID           dri.ID               `yaml:"id"`
	Name         string               `yaml:"name"`
	Receiver     *Parameter           `yaml:"receiver,omitempty"`
	Parameters   []*Parameter         `yaml:"parameters,omitempty"`
	Return       string               `yaml:"return,omitempty"`
	Descriptors  []PlatformDescriptor `yaml:"platforms,omitempty"`
	ExpectActual *ExpectActual        `yaml:"expectActual,omitempty"`
}

type Property struct {
	ID           dri.ID               `yaml:"id"`
	Name         string               `yaml:"name"`
	Receiver     *Parameter           `yaml:"receiver,omitempty"`
	Type         string               `yaml:"type,omitempty"`
	Descriptors  []PlatformDescriptor `yaml:"platforms,omitempty"`
	ExpectActual *ExpectActual        `yaml:"expectActual,omitempty"`
}

type Parameter struct {
	ID          dri.ID               `yaml:"id"`
	Name        string               `yaml:"name"`
	Type        string               `yaml:"type,omitempty"`
	Descriptors []PlatformDescriptor `yaml:"platforms,omitempty"`
}

func (m *Module) DocID() dri.ID                   { return m.ID }
func (m *Module) DocName() string                 { return m.Name }
func (m *Module) Kind() Kind                      { return ModuleKind }
func (m *Module) Platforms() []PlatformDescriptor { return m.Descriptors }
func (*Module) documentable()                     {}

func (p *Package) DocID() dri.ID                   { return p.ID }
func (p *Package) DocName() string                 { return p.Name }
func (p *Package) Kind() Kind                      { return PackageKind }
func (p *Package) Platforms() []PlatformDescriptor { return p.Descriptors }
func (*Package) documentable()                     {}

func (c *Class) DocID() dri.ID                   { return c.ID }
func (c *Class) DocName() string                 { return c.Name }
func (c *Class) Kind() Kind                      { return ClassKind }
func (c *Class) Platforms() []PlatformDescriptor { return c.Descriptors }
func (*Class) documentable()                     {}

func (f *Function) DocID() dri.ID                   { return f.ID }
func (f *Function) DocName() string                 { return f.Name }
func (f *Function) Kind() Kind                      { return FunctionKind }
func (f *Function) Platforms() []PlatformDescriptor { return f.Descriptors }
func (*Function) documentable()                     {}

func (p *Property) DocID() dri.ID                   { return p.ID }
func (p *Property) DocName() string                 { return p.Name }
func (p *Property) Kind() Kind                      { return PropertyKind }
func (p *Property) Platforms() []PlatformDescriptor { return p.Descriptors }
func (*Property) documentable()                     {}

func (p *Parameter) DocID() dri.ID                   { return p.ID }
func (p *Parameter) DocName() string                 { return p.Name }
func (p *Parameter) Kind() Kind                      { return ParameterKind }
func (p *Parameter) Platforms() []PlatformDescriptor { return p.Descriptors }
func (*Parameter) documentable()                     {}

// Children returns the direct documentable children of d.
func Children(d Documentable) []Documentable {
	var out []Documentable
	switch n := d.(type) {
	case *Module:
		for _, p := range n.Packages {
			out = append(out, p)
		}
	case *Package:
		out = appendMembers(out, n.Classes, n.Functions, n.Properties)
	case *Class:
		out = appendMembers(out, n.Classes, n.Functions, n.Properties)
		for _, e := range n.Entries {
			out = append(out, e)
		}
	case *Function:
		if n.Receiver != nil {
			out = append(out, n.Receiver)
		}
		for _, p := range n.Parameters {
			out = append(out, p)
		}
	case *Property:
		if n.Receiver != nil {
			out = append(out, n.Receiver)
		}
	case *Parameter:
	}
	return out
}

func appendMembers(out []Documentable, classes []*Class, fns []*Function, props []*Property) []Documentable {
	for _, c := range classes {
		out = append(out, c)
	}
	for _, f := range fns {
		out = append(out, f)
	}
	for _, p := range props {
		out = append(out, p)
	}
	return out
}

// Walk visits d and every descendant depth first.
func Walk(d Documentable, fn func(Documentable) bool) {
	if !fn(d) {
		return
	}
	for _, c := range Children(d) {
		Walk(c, fn)
	}
}

// PlatformNames returns the platform names of a descriptor list in order.
func PlatformNames(ds []PlatformDescriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Platform)
	}
	return out
}
