package dri

import (
	"sort"
	"strings"
)

// ContentKind tags the role of a content node within a page.
type ContentKind string

const (
	KindMain       ContentKind = "main"
	KindSymbol     ContentKind = "symbol"
	KindComment    ContentKind = "comment"
	KindHeader     ContentKind = "header"
	KindTable      ContentKind = "table"
	KindText       ContentKind = "text"
	KindLink       ContentKind = "link"
	KindCode       ContentKind = "code"
	KindGroup      ContentKind = "group"
	KindClasslikes ContentKind = "classlikes"
	KindFunctions  ContentKind = "functions"
	KindProperties ContentKind = "properties"
	KindPackages   ContentKind = "packages"
	KindParameters ContentKind = "parameters"
)

// CID identifies a content node: the set of IDs it documents plus its kind.
type CID struct {
	IDs  []ID        `json:"ids" yaml:"ids"`
	Kind ContentKind `json:"kind" yaml:"kind"`
}

// NewCID builds a content identifier for the given IDs.
func NewCID(kind ContentKind, ids ...ID) CID {
	return CID{IDs: ids, Kind: kind}
}

// Key is independent of the order of IDs and ignores duplicates.
func (c CID) Key() Key {
	return Key(string(SetKey(c.IDs)) + "|" + string(c.Kind))
}

// SetKey joins the sorted, deduplicated keys of ids.
func SetKey(ids []ID) Key {
	keys := make([]string, 0, len(ids))
	seen := make(map[Key]bool, len(ids))
	for _, id := range ids {
		k := id.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return Key(strings.Join(keys, ";"))
}

// Union merges ID sets keeping first-appearance order.
func Union(sets ...[]ID) []ID {
	var out []ID
	seen := make(map[Key]bool)
	for _, set := range sets {
		for _, id := range set {
			k := id.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, id)
		}
	}
	return out
}
