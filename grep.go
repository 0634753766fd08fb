package docq

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// SortCriterion orders Grep results by the value a selector extracts from
// each node.
type SortCriterion struct {
	Type     string // str, num, bool or date
	Desc     bool
	Selector string
}

// ParseSortCriterion parses a criterion of the form "type[,order]:selector",
// e.g. "num,desc:@rank" or "date:pubDate".
func ParseSortCriterion(s string) (SortCriterion, error) {
	head, sel, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(sel) == "" {
		return SortCriterion{}, Errorf(EINVALID, "sort criterion %q must be formatted <type>:<selector>", s)
	}
	typ, order, _ := strings.Cut(head, ",")
	typ = strings.ToLower(strings.TrimSpace(typ))
	order = strings.ToLower(strings.TrimSpace(order))

	switch typ {
	case "str", "string":
		typ = "str"
	case "num", "bool", "date":
	default:
		return SortCriterion{}, Errorf(EINVALID, "unknown sort type %q in %q", typ, s)
	}

	var desc bool
	switch order {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return SortCriterion{}, Errorf(EINVALID, "unknown sort order %q in %q", order, s)
	}

	if _, err := Compile(sel); err != nil {
		return SortCriterion{}, err
	}
	return SortCriterion{Type: typ, Desc: desc, Selector: sel}, nil
}

// Grep runs query against every root, concatenates the matches in root
// order and sorts them by each criterion in turn. Every criterion is a
// stable ascending sort; when the last criterion is descending the list is
// reversed after each pass.
func Grep(roots []*Element, query string, sortBy ...string) ([]*Element, error) {
	sel, err := Compile(query)
	if err != nil {
		return nil, err
	}
	criteria := make([]SortCriterion, 0, len(sortBy))
	for _, s := range sortBy {
		c, err := ParseSortCriterion(s)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, c)
	}

	var nodes []*Element
	for _, root := range roots {
		if root == nil {
			continue
		}
		nodes = append(nodes, root.Select(sel).nodes...)
	}

	if len(criteria) == 0 {
		return nodes, nil
	}
	reverse := criteria[len(criteria)-1].Desc
	for _, c := range criteria {
		keys := make(map[*Element]string, len(nodes))
		for _, n := range nodes {
			v, _, _ := n.Value(c.Selector)
			keys[n] = v
		}
		slices.SortStableFunc(nodes, func(a, b *Element) int {
			return compareAs(c.Type, keys[a], keys[b])
		})
		if reverse {
			slices.Reverse(nodes)
		}
	}
	return nodes, nil
}

func compareAs(typ, a, b string) int {
	switch typ {
	case "num":
		return cmp.Compare(toFloat(a), toFloat(b))
	case "bool":
		ta, tb := toBool(a), toBool(b)
		switch {
		case ta == tb:
			return 0
		case ta:
			return -1
		default:
			return 1
		}
	case "date":
		return toTime(a).Compare(toTime(b))
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func toBool(s string) bool {
	return s != "" && s != "0"
}

// toTime returns the zero time for values dateparse cannot read, so
// undated nodes sort first.
func toTime(s string) time.Time {
	t, err := dateparse.ParseAny(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
