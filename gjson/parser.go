// Package gjson parses JSON documents into docq trees using
// github.com/tidwall/gjson, which preserves object member order.
package gjson

import (
	"github.com/fwojciec/docq"
	"github.com/tidwall/gjson"
)

// Ensure Parser implements docq.DocumentParser at compile time.
var _ docq.DocumentParser = (*Parser)(nil)

const (
	// RootName names the element wrapping every parsed document.
	RootName = "json"
	// ItemName names the elements produced by a top-level array.
	ItemName = "item"
)

// Parser is the JSON backend.
//
// Object members become child elements named by their key, in document
// order. An array member yields one child per item, each named by the
// member key. Scalar members are additionally exposed as attributes of
// their object, so both "user name" and "user@name" work.
type Parser struct{}

// NewParser creates a JSON Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements docq.DocumentParser.
func (p *Parser) Parse(content string) (*docq.Element, error) {
	if !gjson.Valid(content) {
		return nil, docq.Errorf(docq.EPARSE, "failed to parse JSON: invalid document")
	}
	doc := gjson.Parse(content)

	switch {
	case doc.IsObject():
		b := docq.NewBuilder(docq.FormatJSON, "", RootName, scalarMembers(doc))
		members(b, doc)
		return b.Root(), nil
	case doc.IsArray():
		b := docq.NewBuilder(docq.FormatJSON, "", RootName, nil)
		for _, item := range doc.Array() {
			member(b, ItemName, item)
		}
		return b.Root(), nil
	default:
		b := docq.NewBuilder(docq.FormatJSON, "", RootName, nil)
		b.Text(scalar(doc))
		return b.Root(), nil
	}
}

func members(b *docq.Builder, obj gjson.Result) {
	obj.ForEach(func(key, value gjson.Result) bool {
		member(b, key.String(), value)
		return true
	})
}

func member(b *docq.Builder, name string, v gjson.Result) {
	switch {
	case v.IsObject():
		b.Open("", name, scalarMembers(v))
		members(b, v)
		b.Close()
	case v.IsArray():
		for _, item := range v.Array() {
			member(b, name, item)
		}
	default:
		b.Scalar(name, scalar(v))
	}
}

// scalarMembers returns the scalar members of obj keyed by name.
func scalarMembers(obj gjson.Result) map[string]string {
	var out map[string]string
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() || value.IsArray() {
			return true
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[key.String()] = scalar(value)
		return true
	})
	return out
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	}
	return v.String()
}
