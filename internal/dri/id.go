// Package dri implements structural identifiers for documentable elements.
//
// An ID is the tuple (package, class path, callable, parameter index,
// discriminator). It never carries a platform: the same declaration seen by
// several targets has the same ID, and that is what lets per-target trees be
// merged. The canonical string form is
//
//	package/classPath/callableName/receiver#return#p1#p2/parameterIndex/discriminator
//
// with empty segments for absent fields, so the top-level ID is "/////".
package dri

import (
	"strconv"
	"strings"

	"github.com/jcdickinson/docref/internal/docerr"
)

// EnumEntryDiscriminator marks an ID that points at an enum constant.
const EnumEntryDiscriminator = "EnumEntry"

// TypeParameterDiscriminator marks an ID whose parameter index counts type
// parameters rather than value parameters.
const TypeParameterDiscriminator = "TypeParameter"

const segments = 6

// Key is the canonical string form of an ID. It is comparable and is what
// merge grouping and location indexes hash on.
type Key string

// ID is a structural identifier. The zero value is the top-level ID.
type ID struct {
	Package        string
	ClassPath      string
	Callable       *Callable
	ParameterIndex *int
	Discriminator  string
}

// TopLevel is the ID with every field absent.
var TopLevel = ID{}

// String encodes the ID in canonical form.
func (id ID) String() string {
	var b strings.Builder
	b.WriteString(id.Package)
	b.WriteByte('/')
	b.WriteString(id.ClassPath)
	b.WriteByte('/')
	if id.Callable != nil {
		b.WriteString(id.Callable.Name)
		b.WriteByte('/')
		b.WriteString(id.Callable.Signature())
	} else {
		b.WriteByte('/')
	}
	b.WriteByte('/')
	if id.ParameterIndex != nil {
		b.WriteString(strconv.Itoa(*id.ParameterIndex))
	}
	b.WriteByte('/')
	b.WriteString(id.Discriminator)
	return b.String()
}

// Key returns the hashable canonical form.
func (id ID) Key() Key {
	return Key(id.String())
}

// Equal compares two IDs structurally.
func (id ID) Equal(other ID) bool {
	return id.Key() == other.Key()
}

// IsTopLevel reports whether every field is absent.
func (id ID) IsTopLevel() bool {
	return id.Package == "" && id.ClassPath == "" && id.Callable == nil &&
		id.ParameterIndex == nil && id.Discriminator == ""
}

// IsEnumEntry reports whether the ID points at an enum constant.
func (id ID) IsEnumEntry() bool {
	return id.Discriminator == EnumEntryDiscriminator
}

// ClassNames splits the class path into its nested components, outermost first.
func (id ID) ClassNames() []string {
	if id.ClassPath == "" {
		return nil
	}
	return strings.Split(id.ClassPath, ".")
}

// Parse decodes the canonical form. The discriminator is the last segment
// and absorbs any further '/' characters.
func Parse(s string) (ID, error) {
	parts := strings.SplitN(s, "/", segments)
	if len(parts) != segments {
		return ID{}, &docerr.MalformedIdentifierError{
			Input:  s,
			Reason: "expected " + strconv.Itoa(segments) + " segments, got " + strconv.Itoa(len(parts)),
		}
	}

	id := ID{
		Package:       parts[0],
		ClassPath:     parts[1],
		Discriminator: parts[5],
	}

	name, sig := parts[2], parts[3]
	switch {
	case name == "" && sig != "":
		return ID{}, &docerr.MalformedIdentifierError{Input: s, Reason: "signature without callable name"}
	case name != "":
		c, err := decodeSignature(name, sig)
		if err != nil {
			return ID{}, &docerr.MalformedIdentifierError{Input: s, Reason: err.Error()}
		}
		id.Callable = c
	}

	if parts[4] != "" {
		n, err := strconv.Atoi(parts[4])
		if err != nil || n < 0 {
			return ID{}, &docerr.MalformedIdentifierError{Input: s, Reason: "bad parameter index " + strconv.Quote(parts[4])}
		}
		id.ParameterIndex = &n
	}
	return id, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// TryParse is for call sites that try a string and drop it when it is not
// an identifier.
func TryParse(s string) (ID, bool) {
	id, err := Parse(s)
	return id, err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
