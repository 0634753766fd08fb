package docq

import (
	"strings"
)

// Query compiles query and runs it against e.
func (e *Element) Query(query string) (*Collection, error) {
	sel, err := Compile(query)
	if err != nil {
		return nil, err
	}
	return e.Select(sel), nil
}

// Select runs a compiled selector against e. Scalar-getter selectors
// yield a collection holding at most one scalar node.
func (e *Element) Select(sel *Selector) *Collection {
	if sel.IsGetter() {
		if v, ok := e.getter(sel.steps[0]); ok {
			return newCollection([]*Element{scalar(e, sel.steps[0].Attr, v)}, e)
		}
		return newCollection(nil, e)
	}

	var results []*Element
	parts := branches(sel.steps)
	for i, branch := range parts {
		found := e.run(branch)
		// Only the final branch may come back empty without emptying the
		// whole query.
		if len(found) == 0 && i < len(parts)-1 {
			return newCollection(nil, e)
		}
		results = append(results, found...)
	}
	return newCollection(results, e)
}

// Value returns the attribute value of a scalar-getter query such as "@id",
// or the text of the first node matched by any other query.
// The boolean is false when nothing matched.
func (e *Element) Value(query string) (string, bool, error) {
	sel, err := Compile(query)
	if err != nil {
		return "", false, err
	}
	if sel.IsGetter() {
		v, ok := e.getter(sel.steps[0])
		return v, ok, nil
	}
	c := e.Select(sel)
	if c.Len() == 0 {
		return "", false, nil
	}
	return c.At(0).Text(), true, nil
}

// First returns the first node matched by query, or nil.
func (e *Element) First(query string) (*Element, error) {
	c, err := e.Query(query)
	if err != nil {
		return nil, err
	}
	return c.First(), nil
}

// Last returns the last node matched by query, or nil.
func (e *Element) Last(query string) (*Element, error) {
	c, err := e.Query(query)
	if err != nil {
		return nil, err
	}
	return c.Last(), nil
}

// getter evaluates a leading @name step against e alone.
func (e *Element) getter(st Step) (string, bool) {
	set := []*Element{e}
	if len(st.Predicates) > 0 {
		set = filterPredicates(set, st.Predicates)
	}
	for _, n := range set {
		if v, ok := n.Attr(st.Attr); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// branches splits steps at union flags.
func branches(steps []Step) [][]Step {
	var out [][]Step
	start := 0
	for i, st := range steps {
		if st.Union {
			out = append(out, steps[start:i+1])
			start = i + 1
		}
	}
	if start < len(steps) {
		out = append(out, steps[start:])
	}
	return out
}

// run folds the steps of one branch over a working set seeded with e.
func (e *Element) run(steps []Step) []*Element {
	set := []*Element{e}
	for _, st := range steps {
		set = apply(set, st)
		if len(set) == 0 {
			return nil
		}
	}
	return set
}

func apply(set []*Element, st Step) []*Element {
	if st.Element != "" {
		var next []*Element
		seen := make(map[*Element]struct{})
		for _, n := range set {
			for _, m := range n.matching(st.Namespace, st.Element, st.Direct) {
				if _, dup := seen[m]; dup {
					continue
				}
				seen[m] = struct{}{}
				next = append(next, m)
			}
		}
		set = next
	}

	if len(st.Predicates) > 0 {
		set = filterPredicates(set, st.Predicates)
	}

	if st.Attr != "" {
		var projected []*Element
		for _, n := range set {
			if v, ok := n.Attr(st.Attr); ok && v != "" {
				projected = append(projected, scalar(n, st.Attr, v))
			}
		}
		set = projected
	}

	if st.Index >= 0 && !st.hasSuffix(SuffixEq) {
		set = nth(set, st.Index)
	}

	for _, sfx := range st.Suffixes {
		set = applySuffix(set, sfx)
	}
	return set
}

func filterPredicates(set []*Element, preds []Predicate) []*Element {
	var out []*Element
	for _, n := range set {
		if matchesAll(n, preds) {
			out = append(out, n)
		}
	}
	return out
}

func matchesAll(n *Element, preds []Predicate) bool {
	for _, p := range preds {
		v, ok := n.Attr(p.Name)
		if !ok || v == "" {
			return false
		}
		if !p.Op.match(v, p.Value) {
			return false
		}
	}
	return true
}

// match compares an attribute value against a predicate operand.
func (op Op) match(actual, want string) bool {
	switch op {
	case OpExists:
		return true
	case OpEqual:
		return actual == want
	case OpNotEqual:
		return actual != want
	case OpDashMatch:
		return actual == want || strings.HasPrefix(actual, want+"-")
	case OpContains:
		return strings.Contains(actual, want)
	case OpWord:
		for _, w := range strings.Fields(actual) {
			if w == want {
				return true
			}
		}
		return false
	case OpSuffix:
		return strings.HasSuffix(actual, want)
	case OpPrefix:
		return strings.HasPrefix(actual, want)
	}
	return false
}

func nth(set []*Element, i int) []*Element {
	if i < 0 || i >= len(set) {
		return nil
	}
	return []*Element{set[i]}
}

func applySuffix(set []*Element, sfx Suffix) []*Element {
	switch sfx.Name {
	case SuffixEq:
		return nth(set, sfx.N)
	case SuffixFirst:
		return nth(set, 0)
	case SuffixLast:
		return nth(set, len(set)-1)
	case SuffixGt:
		if sfx.N+1 >= len(set) {
			return nil
		}
		return set[sfx.N+1:]
	case SuffixLt:
		if sfx.N >= len(set) {
			return set
		}
		return set[:sfx.N]
	case SuffixEven, SuffixOdd:
		rem := 0
		if sfx.Name == SuffixOdd {
			rem = 1
		}
		var out []*Element
		for i, n := range set {
			if i%2 == rem {
				out = append(out, n)
			}
		}
		return out
	case SuffixEmpty:
		return keep(set, (*Element).IsEmpty)
	case SuffixParent:
		return keep(set, func(n *Element) bool { return !n.IsEmpty() })
	case SuffixHas:
		return keep(set, func(n *Element) bool { return n.Select(sfx.sub).Len() > 0 })
	case SuffixContains:
		return keep(set, func(n *Element) bool { return strings.Contains(n.text, sfx.Arg) })
	}
	return set
}

func keep(set []*Element, fn func(*Element) bool) []*Element {
	var out []*Element
	for _, n := range set {
		if fn(n) {
			out = append(out, n)
		}
	}
	return out
}
