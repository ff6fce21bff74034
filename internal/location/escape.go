package location

import (
	"strings"
	"unicode"
)

var reservedNames = map[string]bool{
	"index": true,
	"con":   true,
	"aux":   true,
	"lst":   true,
	"prn":   true,
	"nul":   true,
	"eof":   true,
	"inp":   true,
	"out":   true,
}

// EscapeFilename maps an identifier to a name that is safe on
// case-insensitive file systems. Uppercase letters become '-' plus the
// lowercase letter, angle brackets become '-', and consecutive dashes
// produced by escaping collapse to one.
func EscapeFilename(name string) string {
	if name == "" {
		return "-empty-"
	}
	if reservedNames[name] {
		return "--" + name + "--"
	}

	var b strings.Builder
	b.Grow(len(name) + 4)
	dash := false
	for _, r := range name {
		switch {
		case r == '<' || r == '>':
			if !dash {
				b.WriteByte('-')
			}
			dash = true
		case r >= 'A' && r <= 'Z':
			if !dash {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			dash = false
		default:
			b.WriteRune(r)
			dash = false
		}
	}
	return b.String()
}
