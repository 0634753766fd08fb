// Package goquery parses HTML documents into docq trees using
// github.com/PuerkitoBio/goquery and golang.org/x/net/html.
package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/docq"
	"golang.org/x/net/html"
)

// Ensure Parser implements docq.DocumentParser at compile time.
var _ docq.DocumentParser = (*Parser)(nil)

// RootName names the element wrapping every parsed document.
const RootName = "#document"

// Parser is the HTML backend. The HTML5 parsing algorithm repairs most
// malformed markup, so Parse rarely fails.
type Parser struct{}

// NewParser creates an HTML Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements docq.DocumentParser.
func (p *Parser) Parse(content string) (*docq.Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, docq.Errorf(docq.EPARSE, "failed to parse HTML: %v", err)
	}

	b := docq.NewBuilder(docq.FormatHTML, "", RootName, nil)
	for _, n := range doc.Nodes {
		build(b, n)
	}
	return b.Root(), nil
}

func build(b *docq.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			b.Open(c.Namespace, c.Data, attributes(c))
			build(b, c)
			b.Close()
		case html.TextNode:
			b.Text(c.Data)
		}
	}
}

func attributes(n *html.Node) map[string]string {
	if len(n.Attr) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		out[key] = a.Val
	}
	return out
}
