// Package external resolves identifiers against documentation hosted
// elsewhere, described by a package-list manifest.
package external

import (
	"strings"

	"github.com/jcdickinson/docref/internal/dri"
)

// Format describes how a documentation set lays out its files.
type Format struct {
	Name      string
	Extension string
	// Javadoc selects the Javadoc layout; otherwise the Dokka layout is used.
	Javadoc bool
	anchor  func(c dri.Callable) string
}

// Anchor renders the in-page anchor of a callable. Dokka layouts give every
// callable its own page and return "".
func (f Format) Anchor(c dri.Callable) string {
	if f.anchor == nil {
		return ""
	}
	return f.anchor(c)
}

// WithExtension returns a copy of f using ext, with or without a leading dot.
func (f Format) WithExtension(ext string) Format {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		f.Extension = ""
	} else {
		f.Extension = "." + ext
	}
	return f
}

var (
	Javadoc1 = Format{Name: "javadoc1", Extension: ".html", Javadoc: true, anchor: func(c dri.Callable) string {
		return c.Name + "(" + strings.Join(c.Params, ", ") + ")"
	}}
	Javadoc8 = Format{Name: "javadoc8", Extension: ".html", Javadoc: true, anchor: func(c dri.Callable) string {
		return c.Name + "-" + strings.Join(c.Params, "-") + "-"
	}}
	Javadoc10 = Format{Name: "javadoc10", Extension: ".html", Javadoc: true, anchor: func(c dri.Callable) string {
		return c.Name + "(" + strings.Join(c.Params, ",") + ")"
	}}

	DokkaHTML         = Format{Name: "html-v1", Extension: ".html"}
	DokkaJavadoc      = Format{Name: "javadoc-v1", Extension: ".html", Javadoc: true, anchor: Javadoc10.anchor}
	DokkaGFM          = Format{Name: "gfm-v1", Extension: ".md"}
	DokkaJekyll       = Format{Name: "jekyll-v1", Extension: ".md"}
	KotlinWebsiteHTML = Format{Name: "kotlin-website-html", Extension: ".html"}
)

var formatsByName = map[string]Format{
	Javadoc1.Name:          Javadoc1,
	Javadoc8.Name:          Javadoc8,
	Javadoc10.Name:         Javadoc10,
	DokkaHTML.Name:         DokkaHTML,
	DokkaJavadoc.Name:      DokkaJavadoc,
	DokkaGFM.Name:          DokkaGFM,
	DokkaJekyll.Name:       DokkaJekyll,
	KotlinWebsiteHTML.Name: KotlinWebsiteHTML,
}

// FormatByName looks up a format by its manifest name.
func FormatByName(name string) (Format, bool) {
	f, ok := formatsByName[name]
	return f, ok
}

// DefaultJDKVersion is assumed when a link gives no JDK hint.
const DefaultJDKVersion = 8

// InferFormat picks the Javadoc era from a JDK version hint.
func InferFormat(jdk int) Format {
	switch {
	case jdk <= 0:
		return InferFormat(DefaultJDKVersion)
	case jdk < 8:
		return Javadoc1
	case jdk < 10:
		return Javadoc8
	default:
		return Javadoc10
	}
}
