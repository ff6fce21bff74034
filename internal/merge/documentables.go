package merge

import (
	"github.com/jcdickinson/docref/internal/model"
)

// Documentables merges per-target module trees into one. All trees must
// describe the same module.
func Documentables(trees ...*model.Module) (*model.Module, error) {
	if len(trees) == 0 {
		return nil, illegal("", "nothing", "nothing", "no trees to merge")
	}
	acc := trees[0]
	for _, t := range trees[1:] {
		var err error
		if acc, err = mergeModule(acc, t); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func mergeModule(a, b *model.Module) (*model.Module, error) {
	if a.ID.Key() != b.ID.Key() || a.Name != b.Name {
		return nil, illegal(a.ID.Key(), "module "+a.Name, "module "+b.Name, "roots differ")
	}
	pkgs, err := Siblings(concat(a.Packages, b.Packages), docKey[*model.Package], mergePackage)
	if err != nil {
		return nil, err
	}
	return &model.Module{
		ID:          a.ID,
		Name:        a.Name,
		Packages:    pkgs,
		Descriptors: descriptors(a.Descriptors, b.Descriptors),
	}, nil
}

func mergePackage(a, b *model.Package) (*model.Package, error) {
	out := &model.Package{
		ID:          a.ID,
		Name:        a.Name,
		Descriptors: descriptors(a.Descriptors, b.Descriptors),
	}
	var err error
	if out.Classes, err = Siblings(concat(a.Classes, b.Classes), docKey[*model.Class], mergeClass); err != nil {
		return nil, err
	}
	if out.Functions, err = Siblings(concat(a.Functions, b.Functions), docKey[*model.Function], mergeFunction); err != nil {
		return nil, err
	}
	if out.Properties, err = Siblings(concat(a.Properties, b.Properties), docKey[*model.Property], mergeProperty); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeClass(a, b *model.Class) (*model.Class, error) {
	if a.ClassKind != b.ClassKind {
		return nil, illegal(a.ID.Key(), a.ClassKind, b.ClassKind, "classlike kinds differ")
	}
	out := &model.Class{
		ID:           a.ID,
		Name:         a.Name,
		ClassKind:    a.ClassKind,
		Descriptors:  descriptors(a.Descriptors, b.Descriptors),
		ExpectActual: expectActual(a.ExpectActual, b.ExpectActual),
	}
	var err error
	if out.Classes, err = Siblings(concat(a.Classes, b.Classes), docKey[*model.Class], mergeClass); err != nil {
		return nil, err
	}
	if out.Entries, err = Siblings(concat(a.Entries, b.Entries), docKey[*model.Class], mergeClass); err != nil {
		return nil, err
	}
	if out.Functions, err = Siblings(concat(a.Functions, b.Functions), docKey[*model.Function], mergeFunction); err != nil {
		return nil, err
	}
	if out.Properties, err = Siblings(concat(a.Properties, b.Properties), docKey[*model.Property], mergeProperty); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeFunction(a, b *model.Function) (*model.Function, error) {
	recv, err := mergeReceiver(a.Receiver, b.Receiver)
	if err != nil {
		return nil, err
	}
	params, err := Siblings(concat(a.Parameters, b.Parameters), docKey[*model.Parameter], mergeParameter)
	if err != nil {
		return nil, err
	}
	return &model.Function{
		ID:           a.ID,
		Name:         a.Name,
		Receiver:     recv,
		Parameters:   params,
		Return:       a.Return,
		Descriptors:  descriptors(a.Descriptors, b.Descriptors),
		ExpectActual: expectActual(a.ExpectActual, b.ExpectActual),
	}, nil
}

func mergeProperty(a, b *model.Property) (*model.Property, error) {
	recv, err := mergeReceiver(a.Receiver, b.Receiver)
	if err != nil {
		return nil, err
	}
	return &model.Property{
		ID:           a.ID,
		Name:         a.Name,
		Receiver:     recv,
		Type:         a.Type,
		Descriptors:  descriptors(a.Descriptors, b.Descriptors),
		ExpectActual: expectActual(a.ExpectActual, b.ExpectActual),
	}, nil
}

func mergeReceiver(a, b *model.Parameter) (*model.Parameter, error) {
	switch {
	case a == nil:
		return b, nil
	case b == nil:
		return a, nil
	}
	return mergeParameter(a, b)
}

func mergeParameter(a, b *model.Parameter) (*model.Parameter, error) {
	return &model.Parameter{
		ID:          a.ID,
		Name:        a.Name,
		Type:        a.Type,
		Descriptors: descriptors(a.Descriptors, b.Descriptors),
	}, nil
}
