// Package etree parses XML documents into docq trees using
// github.com/beevik/etree.
package etree

import (
	"github.com/beevik/etree"
	"github.com/fwojciec/docq"
)

// Ensure Parser implements docq.DocumentParser at compile time.
var _ docq.DocumentParser = (*Parser)(nil)

// Parser is the XML backend. The document element becomes the root of the
// returned tree.
type Parser struct {
	// Permissive tolerates some malformed markup, such as unquoted
	// attribute values and undeclared entities.
	Permissive bool
}

// NewParser creates a strict XML Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements docq.DocumentParser.
func (p *Parser) Parse(content string) (*docq.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = p.Permissive
	if err := doc.ReadFromString(content); err != nil {
		return nil, docq.Errorf(docq.EPARSE, "failed to parse XML: %v", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, docq.Errorf(docq.EPARSE, "XML document has no root element")
	}

	b := docq.NewBuilder(docq.FormatXML, root.Space, root.Tag, attributes(root))
	build(b, root)
	return b.Root(), nil
}

func build(b *docq.Builder, el *etree.Element) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			b.Open(t.Space, t.Tag, attributes(t))
			build(b, t)
			b.Close()
		case *etree.CharData:
			b.Text(t.Data)
		}
	}
}

// attributes keys attributes by name, or by "ns:name" when prefixed.
// Namespace declarations are dropped.
func attributes(el *etree.Element) map[string]string {
	if len(el.Attr) == 0 {
		return nil
	}
	out := make(map[string]string, len(el.Attr))
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		key := a.Key
		if a.Space != "" {
			key = a.Space + ":" + a.Key
		}
		out[key] = a.Value
	}
	return out
}
