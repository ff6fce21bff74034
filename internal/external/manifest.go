package external

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jcdickinson/docref/internal/docerr"
)

const (
	paramPrefix    = "$dokka."
	modulePrefix   = "module:"
	locationSep    = "\u001f"
	formatKey      = "format"
	linkExtKey     = "linkExtension"
	locationKey    = "location"
	maxManifestLen = 1 << 20
)

// Manifest is a parsed package-list.
type Manifest struct {
	URL       string
	Format    Format
	Modules   map[string][]string
	Locations map[string]string

	modules map[string]string
}

// ModuleFor returns the module declaring pkg. The unnamed module is "".
func (m *Manifest) ModuleFor(pkg string) (string, bool) {
	mod, ok := m.modules[pkg]
	return mod, ok
}

// Packages lists every declared package, sorted.
func (m *Manifest) Packages() []string {
	out := make([]string, 0, len(m.modules))
	for p := range m.modules {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ParseManifest decodes a package-list. An explicit $dokka.format wins;
// otherwise the format is inferred from the JDK hint.
func ParseManifest(r io.Reader, url string, jdkVersion int) (*Manifest, error) {
	m := &Manifest{
		URL:       url,
		Modules:   make(map[string][]string),
		Locations: make(map[string]string),
		modules:   make(map[string]string),
	}

	var (
		format    *Format
		extension *string
		module    string
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxManifestLen)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, paramPrefix):
			key, value, _ := strings.Cut(strings.TrimPrefix(text, paramPrefix), ":")
			switch key {
			case formatKey:
				f, ok := FormatByName(value)
				if !ok {
					return nil, &docerr.ManifestError{URL: url, Message: fmt.Sprintf("line %d: unknown format %q", line, value)}
				}
				format = &f
			case linkExtKey:
				extension = &value
			case locationKey:
				id, path, ok := strings.Cut(value, locationSep)
				if !ok {
					return nil, &docerr.ManifestError{URL: url, Message: fmt.Sprintf("line %d: location without path", line)}
				}
				m.Locations[id] = path
			}
		case strings.HasPrefix(text, modulePrefix):
			module = strings.TrimPrefix(text, modulePrefix)
			if _, ok := m.Modules[module]; !ok {
				m.Modules[module] = nil
			}
		default:
			m.Modules[module] = append(m.Modules[module], text)
			m.modules[text] = module
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &docerr.ManifestError{URL: url, Message: "reading", Cause: err}
	}

	if format != nil {
		m.Format = *format
	} else {
		m.Format = InferFormat(jdkVersion)
	}
	if extension != nil {
		m.Format = m.Format.WithExtension(*extension)
	}
	return m, nil
}

// ManifestSpec is the content of a package-list to write.
type ManifestSpec struct {
	Format    string
	Extension string
	Locations map[string]string
	Modules   map[string][]string
}

// WriteManifest emits a package-list that ParseManifest reads back.
func WriteManifest(w io.Writer, spec ManifestSpec) error {
	bw := bufio.NewWriter(w)
	if spec.Format != "" {
		fmt.Fprintf(bw, "%s%s:%s\n", paramPrefix, formatKey, spec.Format)
	}
	if ext := strings.TrimPrefix(spec.Extension, "."); ext != "" {
		fmt.Fprintf(bw, "%s%s:%s\n", paramPrefix, linkExtKey, ext)
	}

	ids := make([]string, 0, len(spec.Locations))
	for id := range spec.Locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(bw, "%s%s:%s%s%s\n", paramPrefix, locationKey, id, locationSep, spec.Locations[id])
	}

	modules := make([]string, 0, len(spec.Modules))
	for mod := range spec.Modules {
		modules = append(modules, mod)
	}
	sort.Strings(modules)
	for _, mod := range modules {
		if mod != "" {
			fmt.Fprintf(bw, "%s%s\n", modulePrefix, mod)
		}
		pkgs := append([]string(nil), spec.Modules[mod]...)
		sort.Strings(pkgs)
		for _, p := range pkgs {
			fmt.Fprintln(bw, p)
		}
	}
	return bw.Flush()
}
