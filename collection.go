package docq

import (
	"iter"
	"slices"
)

// Collection is an ordered, read-only result set produced by a query.
// It keeps a reference to the root the query ran against so further
// selectors can be added to it.
type Collection struct {
	nodes []*Element
	root  *Element
}

func newCollection(nodes []*Element, root *Element) *Collection {
	return &Collection{nodes: nodes, root: root}
}

// Nodes returns a snapshot of the held nodes.
func (c *Collection) Nodes() []*Element {
	return slices.Clone(c.nodes)
}

// Len returns the number of held nodes.
func (c *Collection) Len() int {
	return len(c.nodes)
}

// At returns the node at index i, or nil when out of range.
func (c *Collection) At(i int) *Element {
	if i < 0 || i >= len(c.nodes) {
		return nil
	}
	return c.nodes[i]
}

// First returns the first node, or nil when the collection is empty.
func (c *Collection) First() *Element {
	return c.At(0)
}

// Last returns the last node, or nil when the collection is empty.
func (c *Collection) Last() *Element {
	return c.At(len(c.nodes) - 1)
}

// Root returns the element the originating query ran against.
func (c *Collection) Root() *Element {
	return c.root
}

// All iterates over the held nodes in order.
func (c *Collection) All() iter.Seq2[int, *Element] {
	return func(yield func(int, *Element) bool) {
		for i, n := range c.nodes {
			if !yield(i, n) {
				return
			}
		}
	}
}

// Children runs query against the direct children of every held node and
// returns the union of the results. A getter query such as "@id" yields the
// attribute of each child that has it.
func (c *Collection) Children(query string) (*Collection, error) {
	sel, err := CompileDirect(query)
	if err != nil {
		return nil, err
	}
	var out []*Element
	for _, n := range c.nodes {
		if !sel.IsGetter() {
			out = append(out, n.Select(sel).nodes...)
			continue
		}
		// A getter reads the children's attributes, not the node's own.
		for _, child := range n.children {
			out = append(out, child.Select(sel).nodes...)
		}
	}
	return newCollection(out, c.root), nil
}

// Add runs query against the stored root and returns a new collection with
// the results appended to the held nodes.
func (c *Collection) Add(query string) (*Collection, error) {
	if c.root == nil {
		return nil, Errorf(EINVALID, "collection has no root to query")
	}
	more, err := c.root.Query(query)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Element, 0, len(c.nodes)+more.Len())
	nodes = append(nodes, c.nodes...)
	nodes = append(nodes, more.nodes...)
	return newCollection(nodes, c.root), nil
}

// Name returns the name of the first node, or "".
func (c *Collection) Name() string {
	if n := c.First(); n != nil {
		return n.Name()
	}
	return ""
}

// Text returns the text of the first node, or "".
func (c *Collection) Text() string {
	if n := c.First(); n != nil {
		return n.Text()
	}
	return ""
}

// String mirrors Text.
func (c *Collection) String() string {
	return c.Text()
}

// Attr returns the named attribute of the first node.
func (c *Collection) Attr(name string) (string, bool) {
	if n := c.First(); n != nil {
		return n.Attr(name)
	}
	return "", false
}

// Value runs Element.Value on the first node.
func (c *Collection) Value(query string) (string, bool, error) {
	if n := c.First(); n != nil {
		return n.Value(query)
	}
	if _, err := Compile(query); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// Set always fails: collections are read-only.
func (c *Collection) Set(i int, n *Element) error {
	return Errorf(EIMMUTABLE, "collection is read-only")
}

// Delete always fails: collections are read-only.
func (c *Collection) Delete(i int) error {
	return Errorf(EIMMUTABLE, "collection is read-only")
}
