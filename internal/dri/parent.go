package dri

import "strings"

// Parent strips the most specific present field. Nested classes are peeled
// one component at a time, innermost first. TopLevel is its own parent.
func (id ID) Parent() ID {
	out := id.clone()
	switch {
	case out.Discriminator != "":
		out.Discriminator = ""
	case out.ParameterIndex != nil:
		out.ParameterIndex = nil
	case out.Callable != nil:
		out.Callable = nil
	case out.ClassPath != "":
		if i := strings.LastIndexByte(out.ClassPath, '.'); i >= 0 {
			out.ClassPath = out.ClassPath[:i]
		} else {
			out.ClassPath = ""
		}
	case out.Package != "":
		out.Package = ""
	}
	return out
}

// Ancestors returns the chain of parents up to and including TopLevel.
func (id ID) Ancestors() []ID {
	var out []ID
	for cur := id; !cur.IsTopLevel(); {
		cur = cur.Parent()
		out = append(out, cur)
	}
	return out
}

// WithCallable returns a copy pointing at the given callable.
func (id ID) WithCallable(c Callable) ID {
	out := id.clone()
	out.Callable = (&c).clone()
	return out
}

// WithParameter returns a copy pointing at parameter i.
func (id ID) WithParameter(i int) ID {
	out := id.clone()
	out.ParameterIndex = &i
	return out
}

// WithDiscriminator returns a copy carrying the given tiebreak.
func (id ID) WithDiscriminator(d string) ID {
	out := id.clone()
	out.Discriminator = d
	return out
}

// WithClass returns a copy nested one class deeper. Any callable, parameter
// or discriminator is dropped.
func (id ID) WithClass(name string) ID {
	out := ID{Package: id.Package, ClassPath: name}
	if id.ClassPath != "" {
		out.ClassPath = id.ClassPath + "." + name
	}
	return out
}

func (id ID) clone() ID {
	out := id
	out.Callable = id.Callable.clone()
	if id.ParameterIndex != nil {
		n := *id.ParameterIndex
		out.ParameterIndex = &n
	}
	return out
}
