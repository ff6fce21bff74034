package dri

import (
	"strings"

	"github.com/jcdickinson/docref/internal/docerr"
)

// Callable identifies a function or property by name and type signature.
// Types are opaque strings; no semantic resolution happens here.
type Callable struct {
	Name     string   `json:"name" yaml:"name"`
	Receiver string   `json:"receiver,omitempty" yaml:"receiver,omitempty"`
	Return   string   `json:"return,omitempty" yaml:"return,omitempty"`
	Params   []string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Signature renders receiver#return#p1#p2...
func (c Callable) Signature() string {
	var b strings.Builder
	b.WriteString(c.Receiver)
	b.WriteByte('#')
	b.WriteString(c.Return)
	b.WriteByte('#')
	b.WriteString(strings.Join(c.Params, "#"))
	return b.String()
}

// String renders the two-part name/signature form accepted by ParseCallable.
func (c Callable) String() string {
	return c.Name + "/" + c.Signature()
}

func (c *Callable) clone() *Callable {
	if c == nil {
		return nil
	}
	out := *c
	if c.Params != nil {
		out.Params = append([]string(nil), c.Params...)
	}
	return &out
}

// ParseCallable decodes name/receiver#return#params. The name and signature
// are split on the last '/', so a name may not contain '#'.
func ParseCallable(s string) (*Callable, error) {
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return nil, &docerr.MalformedIdentifierError{Input: s, Reason: "callable needs name/signature"}
	}
	name := s[:i]
	if name == "" {
		return nil, &docerr.MalformedIdentifierError{Input: s, Reason: "callable name is empty"}
	}
	c, err := decodeSignature(name, s[i+1:])
	if err != nil {
		return nil, &docerr.MalformedIdentifierError{Input: s, Reason: err.Error()}
	}
	return c, nil
}

type signatureError string

func (e signatureError) Error() string { return string(e) }

func decodeSignature(name, sig string) (*Callable, error) {
	c := &Callable{Name: name}
	if sig == "" {
		return c, nil
	}
	parts := strings.SplitN(sig, "#", 3)
	if len(parts) < 3 {
		return nil, signatureError("signature needs receiver#return#params")
	}
	c.Receiver = parts[0]
	c.Return = parts[1]
	if parts[2] != "" {
		c.Params = strings.Split(parts[2], "#")
	}
	return c, nil
}
