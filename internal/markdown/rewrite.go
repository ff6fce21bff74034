package markdown

import (
	"fmt"
	"sort"
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
	"gopkg.in/yaml.v3"

	"github.com/jcdickinson/docref/internal/dri"
)

// Scheme prefixes link destinations that name an ID instead of a path.
const Scheme = "dri:"

func parse(src string) ast.Node {
	return gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))
}

// Destinations returns every unique link destination in document order.
func Destinations(src string) []string {
	seen := make(map[string]bool)
	var out []string
	ast.WalkFunc(parse(src), func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if link, ok := node.(*ast.Link); ok {
			dest := string(link.Destination)
			if !seen[dest] {
				seen[dest] = true
				out = append(out, dest)
			}
		}
		return ast.GoToNext
	})
	return out
}

// RewriteLinks rewrites markdown link destinations using the provided link map.
// It parses the markdown to AST to find all link destinations, then performs
// targeted string replacements to preserve original formatting.
func RewriteLinks(src string, linkMap map[string]string) string {
	if len(linkMap) == 0 {
		return src
	}

	type replacement struct {
		oldDest string
		newDest string
	}
	var replacements []replacement
	for _, dest := range Destinations(src) {
		if newDest, ok := linkMap[dest]; ok {
			replacements = append(replacements, replacement{dest, newDest})
		}
	}

	if len(replacements) == 0 {
		return src
	}

	result := src

	// Inline links: [text](destination), one pass per replacement
	for _, r := range replacements {
		result = strings.ReplaceAll(result, "]("+r.oldDest+")", "]("+r.newDest+")")
	}

	// Reference-style definitions: [ref]: destination
	refMap := make(map[string]string, len(replacements))
	for _, r := range replacements {
		refMap["]: "+r.oldDest] = "]: " + r.newDest
	}
	lines := strings.Split(result, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for oldSuffix, newSuffix := range refMap {
			if strings.HasSuffix(trimmed, oldSuffix) {
				lines[i] = strings.Replace(line, oldSuffix, newSuffix, 1)
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

// ResolveLinks replaces every dri: destination that resolve can place and
// returns the destinations it could not, sorted. Malformed IDs count as
// unresolved.
func ResolveLinks(src string, resolve func(dri.ID) (string, bool)) (string, []string) {
	linkMap := make(map[string]string)
	var unresolved []string
	for _, dest := range Destinations(src) {
		raw, ok := strings.CutPrefix(dest, Scheme)
		if !ok {
			continue
		}
		id, ok := dri.TryParse(raw)
		if !ok {
			unresolved = append(unresolved, dest)
			continue
		}
		path, ok := resolve(id)
		if !ok {
			unresolved = append(unresolved, dest)
			continue
		}
		linkMap[dest] = path
	}
	sort.Strings(unresolved)
	return RewriteLinks(src, linkMap), unresolved
}

// AddFrontMatter prepends a YAML front-matter block, as Jekyll pages expect.
func AddFrontMatter(src string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return src, nil
	}

	// yaml.v3 emits map keys sorted
	out, err := yaml.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
	b.WriteString(src)
	return b.String(), nil
}
