// Package merge folds parallel per-target trees into one logical tree.
//
// Everything here is pure: inputs are never mutated and each call builds
// fresh nodes, so merging may run concurrently on unrelated trees. Reducers
// are associative and keep platform data in a canonical order, which makes
// the result independent of how the inputs are grouped.
package merge

import (
	"sort"

	"github.com/jcdickinson/docref/internal/docerr"
	"github.com/jcdickinson/docref/internal/dri"
	"github.com/jcdickinson/docref/internal/model"
)

// Siblings groups nodes by key, keeping the order in which keys first
// appear, and folds each group pairwise with reduce.
func Siblings[T any](nodes []T, key func(T) dri.Key, reduce func(a, b T) (T, error)) ([]T, error) {
	var order []dri.Key
	groups := make(map[dri.Key][]T)
	for _, n := range nodes {
		k := key(n)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], n)
	}

	out := make([]T, 0, len(order))
	for _, k := range order {
		group := groups[k]
		acc := group[0]
		for _, n := range group[1:] {
			var err error
			if acc, err = reduce(acc, n); err != nil {
				return nil, err
			}
		}
		out = append(out, acc)
	}
	return out, nil
}

func docKey[T model.Documentable](d T) dri.Key {
	return d.DocID().Key()
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// descriptors deduplicates by platform and sorts by platform name. When two
// descriptors claim the same platform the larger one wins, which keeps the
// choice independent of argument order.
func descriptors(a, b []model.PlatformDescriptor) []model.PlatformDescriptor {
	byPlatform := make(map[string]model.PlatformDescriptor, len(a)+len(b))
	for _, d := range concat(a, b) {
		if have, ok := byPlatform[d.Platform]; ok && !descriptorLess(have, d) {
			continue
		}
		byPlatform[d.Platform] = d
	}
	out := make([]model.PlatformDescriptor, 0, len(byPlatform))
	for _, d := range byPlatform {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

func descriptorLess(a, b model.PlatformDescriptor) bool {
	if a.Doc != b.Doc {
		return a.Doc < b.Doc
	}
	if a.Signature != b.Signature {
		return a.Signature < b.Signature
	}
	if len(a.Annotations) != len(b.Annotations) {
		return len(a.Annotations) < len(b.Annotations)
	}
	for i := range a.Annotations {
		if a.Annotations[i] != b.Annotations[i] {
			return a.Annotations[i] < b.Annotations[i]
		}
	}
	return false
}

func expectActual(a, b *model.ExpectActual) *model.ExpectActual {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &model.ExpectActual{
		Expect:  a.Expect || b.Expect,
		Actuals: sortedUnion(a.Actuals, b.Actuals),
	}
}

func sortedUnion(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range concat(a, b) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func illegal(key dri.Key, left, right, msg string) error {
	return &docerr.IllegalStateError{Key: string(key), Left: left, Right: right, Message: msg}
}
