package pages

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jcdickinson/docref/internal/dri"
)

// NodeType enumerates the closed set of content node variants.
type NodeType int

const (
	GroupNode NodeType = iota
	HeaderNode
	TableNode
	TextNode
	CodeNode
	LinkNode
)

func (t NodeType) String() string {
	switch t {
	case GroupNode:
		return "group"
	case HeaderNode:
		return "header"
	case TableNode:
		return "table"
	case TextNode:
		return "text"
	case CodeNode:
		return "code"
	case LinkNode:
		return "link"
	}
	return "unknown"
}

// Composite reports whether nodes of this type carry children.
func (t NodeType) Composite() bool {
	switch t {
	case GroupNode, HeaderNode, TableNode:
		return true
	}
	return false
}

// Node is one element of a page's content tree.
type Node struct {
	Type      NodeType
	CID       dri.CID
	Text      string
	Level     int
	Target    *dri.ID
	Styles    []string
	Platforms []string
	Children  []*Node

	// Extra carries renderer-specific properties (anchors, hints) that take
	// part in the node's identity.
	Extra map[string]string
}

// Rendered returns a structural fingerprint of the node: two nodes with the
// same fingerprint render identically, platforms aside.
func (n *Node) Rendered() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	b.WriteString(n.Type.String())
	b.WriteByte('(')
	switch n.Type {
	case TextNode, CodeNode:
		b.WriteString(n.Text)
	case LinkNode:
		b.WriteString(n.Text)
		if n.Target != nil {
			b.WriteString("->")
			b.WriteString(n.Target.String())
		}
	case HeaderNode:
		b.WriteString(strconv.Itoa(n.Level))
	case GroupNode, TableNode:
	}
	if len(n.Styles) > 0 {
		b.WriteString("[" + strings.Join(n.Styles, ",") + "]")
	}
	if len(n.Extra) > 0 {
		keys := make([]string, 0, len(n.Extra))
		for k := range n.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k + "=" + n.Extra[k])
		}
		b.WriteByte('}')
	}
	for _, c := range n.Children {
		c.render(b)
	}
	b.WriteByte(')')
}

// Links returns every link target below n.
func (n *Node) Links() []dri.ID {
	var out []dri.ID
	if n.Type == LinkNode && n.Target != nil {
		out = append(out, *n.Target)
	}
	for _, c := range n.Children {
		out = append(out, c.Links()...)
	}
	return out
}

func Text(cid dri.CID, text string, platforms ...string) *Node {
	return &Node{Type: TextNode, CID: cid, Text: text, Platforms: platforms}
}

func Code(cid dri.CID, text string, platforms ...string) *Node {
	return &Node{Type: CodeNode, CID: cid, Text: text, Platforms: platforms}
}

func Link(cid dri.CID, text string, target dri.ID, platforms ...string) *Node {
	return &Node{Type: LinkNode, CID: cid, Text: text, Target: &target, Platforms: platforms}
}

func Header(cid dri.CID, level int, children ...*Node) *Node {
	return &Node{Type: HeaderNode, CID: cid, Level: level, Children: children}
}

func Group(cid dri.CID, children ...*Node) *Node {
	return &Node{Type: GroupNode, CID: cid, Children: children}
}

func Table(cid dri.CID, rows ...*Node) *Node {
	return &Node{Type: TableNode, CID: cid, Children: rows}
}

// WithExtra sets one extra property and returns n.
func (n *Node) WithExtra(key, value string) *Node {
	if n.Extra == nil {
		n.Extra = make(map[string]string)
	}
	n.Extra[key] = value
	return n
}
