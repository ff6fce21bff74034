package dri

import "strings"

// ScopeKind classifies an enclosing declaration scope.
type ScopeKind int

const (
	PackageScope ScopeKind = iota
	ClassScope
	CallableScope
)

// Scope is one link of a declaration's enclosing chain.
type Scope struct {
	Kind ScopeKind
	Name string
}

// DeclKind classifies the declaration an ID is derived for.
type DeclKind int

const (
	DeclPackage DeclKind = iota
	DeclClass
	DeclFunction
	DeclProperty
	DeclEnumEntry
	DeclParameter
	DeclTypeParameter
)

// ReceiverPosition is the Position of an extension receiver parameter.
const ReceiverPosition = -1

// Declaration is the translator-facing description of a declaration site.
type Declaration struct {
	Kind DeclKind
	Name string
	// Scopes lists enclosing scopes innermost first.
	Scopes []Scope

	Receiver string
	Return   string
	Params   []string

	// Owner is the declaring callable of a parameter or type parameter.
	Owner *Declaration
	// Position is the zero-based index among value parameters, or among type
	// parameters for DeclTypeParameter. ReceiverPosition selects the
	// extension receiver.
	Position int
}

// FromDeclaration derives the structural ID of a declaration.
func FromDeclaration(d Declaration) ID {
	switch d.Kind {
	case DeclParameter:
		owner := ownerID(d)
		idx := d.Position
		if d.Owner != nil && d.Owner.Receiver != "" {
			idx++
		}
		if idx < 0 {
			idx = 0
		}
		return owner.WithParameter(idx)
	case DeclTypeParameter:
		return ownerID(d).WithParameter(d.Position).WithDiscriminator(TypeParameterDiscriminator)
	}

	id := ID{Package: packageOf(d.Scopes)}
	classes := classChain(d.Scopes)
	switch d.Kind {
	case DeclPackage:
		id.Package = d.Name
		return id
	case DeclClass:
		classes = append(classes, d.Name)
	case DeclEnumEntry:
		classes = append(classes, d.Name)
		id.Discriminator = EnumEntryDiscriminator
	case DeclFunction, DeclProperty:
		id.Callable = &Callable{Name: d.Name, Receiver: d.Receiver, Return: d.Return}
		if len(d.Params) > 0 {
			id.Callable.Params = append([]string(nil), d.Params...)
		}
	}
	id.ClassPath = strings.Join(classes, ".")
	return id
}

func ownerID(d Declaration) ID {
	if d.Owner == nil {
		return ID{Package: packageOf(d.Scopes), ClassPath: strings.Join(classChain(d.Scopes), ".")}
	}
	return FromDeclaration(*d.Owner)
}

func packageOf(scopes []Scope) string {
	for _, s := range scopes {
		if s.Kind == PackageScope {
			return s.Name
		}
	}
	return ""
}

// classChain walks outward collecting class scopes and returns them
// outermost first.
func classChain(scopes []Scope) []string {
	var inner []string
	for _, s := range scopes {
		if s.Kind == PackageScope {
			break
		}
		if s.Kind == ClassScope {
			inner = append(inner, s.Name)
		}
	}
	out := make([]string, 0, len(inner))
	for i := len(inner) - 1; i >= 0; i-- {
		out = append(out, inner[i])
	}
	return out
}
