package docq

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// Kind distinguishes structural elements from scalar-bearing nodes.
type Kind int

const (
	KindElement Kind = iota
	KindScalar
)

// Format identifies the document backend an element was parsed from.
type Format string

// Format constants.
const (
	FormatUnknown Format = ""
	FormatXML     Format = "xml"
	FormatJSON    Format = "json"
	FormatHTML    Format = "html"
)

// DocumentParser parses raw document content into a read-only tree.
// Implementations return EPARSE when the content is malformed.
type DocumentParser interface {
	Parse(content string) (*Element, error)
}

// Element is a read-only node of a parsed document.
// Elements are created through a Builder and never change once the root
// has been returned, so concurrent queries are safe.
type Element struct {
	kind      Kind
	format    Format
	name      string
	namespace string
	attrs     map[string]string
	children  []*Element
	text      string
	parent    *Element

	once        sync.Once
	descendants []*Element
}

// Kind returns the node kind.
func (e *Element) Kind() Kind { return e.kind }

// Format returns the backend the node was parsed from.
func (e *Element) Format() Format { return e.format }

// Name returns the local name of the node.
func (e *Element) Name() string { return e.name }

// Namespace returns the namespace prefix, or "" when unqualified.
func (e *Element) Namespace() string { return e.namespace }

// QualifiedName returns "ns:name" for namespaced nodes and the local name otherwise.
func (e *Element) QualifiedName() string {
	if e.namespace == "" {
		return e.name
	}
	return e.namespace + ":" + e.name
}

// Text returns the raw text content directly held by the node.
func (e *Element) Text() string { return e.text }

// String returns the text content, mirroring Text.
func (e *Element) String() string { return e.text }

// Parent returns the enclosing node, or nil for a root.
func (e *Element) Parent() *Element { return e.parent }

// Children returns a copy of the direct children in document order.
func (e *Element) Children() []*Element {
	return slices.Clone(e.children)
}

// Attributes returns a copy of all attributes keyed by (qualified) name.
func (e *Element) Attributes() map[string]string {
	return maps.Clone(e.attrs)
}

// Attr returns the value of the named attribute. A name of the form
// "ns:name" matches only in that namespace; a bare name matches the local
// name in any namespace.
func (e *Element) Attr(name string) (string, bool) {
	if v, ok := e.attrs[name]; ok {
		return v, true
	}
	if strings.Contains(name, ":") {
		return "", false
	}
	// Deterministic pick when the same local name appears in several namespaces.
	keys := slices.Sorted(maps.Keys(e.attrs))
	for _, k := range keys {
		if _, local, ok := strings.Cut(k, ":"); ok && local == name {
			return e.attrs[k], true
		}
	}
	return "", false
}

// IsEmpty reports whether the node has no children and no text.
func (e *Element) IsEmpty() bool {
	return len(e.children) == 0 && e.text == ""
}

// Descendants returns the descendants matching name in document order.
// An empty name or "*" matches everything; "ns:name" also requires the
// namespace. When direct is true only children of e are returned.
func (e *Element) Descendants(name string, direct bool) []*Element {
	ns, local := "", name
	if before, after, ok := strings.Cut(name, ":"); ok {
		ns, local = before, after
	}
	return e.matching(ns, local, direct)
}

func (e *Element) matching(ns, local string, direct bool) []*Element {
	pool := e.children
	if !direct {
		pool = e.allDescendants()
	}
	var out []*Element
	for _, d := range pool {
		if local != "" && local != "*" && d.name != local {
			continue
		}
		if ns != "" && d.namespace != ns {
			continue
		}
		out = append(out, d)
	}
	return out
}

// allDescendants flattens the subtree once, in document order.
func (e *Element) allDescendants() []*Element {
	e.once.Do(func() {
		var all []*Element
		for _, c := range e.children {
			all = append(all, c)
			all = append(all, c.allDescendants()...)
		}
		e.descendants = all
	})
	return e.descendants
}

// SetAttr always fails: parsed trees are read-only.
func (e *Element) SetAttr(name, value string) error {
	return Errorf(EIMMUTABLE, "element <%s> is read-only", e.QualifiedName())
}

// RemoveChild always fails: parsed trees are read-only.
func (e *Element) RemoveChild(i int) error {
	return Errorf(EIMMUTABLE, "element <%s> is read-only", e.QualifiedName())
}

// Map returns a nested view of the children suitable for inspection: each
// child name maps to a map with optional "text", "children" and "attribs"
// keys, or to a slice of such maps when the name repeats.
func (e *Element) Map() map[string]any {
	out := make(map[string]any)
	for _, c := range e.children {
		v := c.entry()
		name := c.QualifiedName()
		switch prev := out[name].(type) {
		case nil:
			out[name] = v
		case []any:
			out[name] = append(prev, v)
		default:
			out[name] = []any{prev, v}
		}
	}
	return out
}

func (e *Element) entry() map[string]any {
	v := make(map[string]any)
	if t := strings.TrimSpace(e.text); t != "" {
		v["text"] = t
	}
	if len(e.children) > 0 {
		v["children"] = e.Map()
	}
	if len(e.attrs) > 0 {
		attribs := make(map[string]any, len(e.attrs))
		for k, a := range e.attrs {
			attribs[k] = a
		}
		v["attribs"] = attribs
	}
	return v
}

// JSON encodes the node, its attributes and its subtree as JSON.
func (e *Element) JSON() string {
	return oj.JSON(map[string]any{e.QualifiedName(): e.entry()}, &ojg.Options{Sort: true})
}

// Builder assembles an element tree. Backends call Open/Close in document
// order and Root once at the end; the returned tree is then frozen.
type Builder struct {
	format Format
	root   *Element
	stack  []*Element
}

// NewBuilder returns a Builder positioned on a new root element.
func NewBuilder(format Format, namespace, name string, attrs map[string]string) *Builder {
	root := &Element{kind: KindElement, format: format, name: name, namespace: namespace, attrs: attrs}
	return &Builder{format: format, root: root, stack: []*Element{root}}
}

// Open appends a new element to the current element and descends into it.
func (b *Builder) Open(namespace, name string, attrs map[string]string) {
	parent := b.stack[len(b.stack)-1]
	el := &Element{
		kind:      KindElement,
		format:    b.format,
		name:      name,
		namespace: namespace,
		attrs:     attrs,
		parent:    parent,
	}
	parent.children = append(parent.children, el)
	b.stack = append(b.stack, el)
}

// Scalar appends a leaf node holding a single value to the current element.
func (b *Builder) Scalar(name, value string) {
	parent := b.stack[len(b.stack)-1]
	parent.children = append(parent.children, &Element{
		kind:   KindScalar,
		format: b.format,
		name:   name,
		text:   value,
		parent: parent,
	})
}

// Text appends character data to the current element.
func (b *Builder) Text(s string) {
	b.stack[len(b.stack)-1].text += s
}

// Close returns to the parent of the current element.
func (b *Builder) Close() {
	if len(b.stack) > 1 {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

// Root returns the finished tree.
func (b *Builder) Root() *Element {
	b.stack = nil
	return b.root
}

// scalar wraps an attribute value projected out of owner.
func scalar(owner *Element, name, value string) *Element {
	return &Element{
		kind:   KindScalar,
		format: owner.format,
		name:   name,
		text:   value,
		parent: owner,
	}
}
