package docq

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Op is an attribute predicate operator.
type Op string

// Predicate operators. The set of operator strings is part of the selector
// wire format and must not change.
const (
	OpExists    Op = ""
	OpEqual     Op = "="
	OpNotEqual  Op = "!="
	OpDashMatch Op = "|="
	OpContains  Op = "*="
	OpWord      Op = "~="
	OpSuffix    Op = "$="
	OpPrefix    Op = "^="
)

// twoCharOps are tried before OpEqual so "!=" is not read as "!" and "=".
var twoCharOps = []Op{OpNotEqual, OpDashMatch, OpContains, OpWord, OpSuffix, OpPrefix}

// Suffix filter names.
const (
	SuffixEq       = "eq"
	SuffixFirst    = "first"
	SuffixLast     = "last"
	SuffixGt       = "gt"
	SuffixLt       = "lt"
	SuffixEven     = "even"
	SuffixOdd      = "odd"
	SuffixEmpty    = "empty"
	SuffixParent   = "parent"
	SuffixHas      = "has"
	SuffixContains = "contains"
)

type suffixArg int

const (
	argNone suffixArg = iota
	argInt
	argText
	argSelector
)

var suffixArgs = map[string]suffixArg{
	SuffixEq:       argInt,
	SuffixFirst:    argNone,
	SuffixLast:     argNone,
	SuffixGt:       argInt,
	SuffixLt:       argInt,
	SuffixEven:     argNone,
	SuffixOdd:      argNone,
	SuffixEmpty:    argNone,
	SuffixParent:   argNone,
	SuffixHas:      argSelector,
	SuffixContains: argText,
}

// Predicate is a single bracketed attribute test such as [@id="5"].
type Predicate struct {
	Name  string
	Op    Op
	Value string
}

// Suffix is a positional or structural filter such as :eq(2) or :has(a).
type Suffix struct {
	Name string
	Arg  string
	N    int // parsed argument of eq, gt and lt

	sub *Selector // compiled argument of has
}

// Step is one compiled element of a selector chain.
type Step struct {
	Element    string
	Namespace  string
	Index      int // -1 when the step has no [N] ordinal
	Attr       string
	Predicates []Predicate
	Suffixes   []Suffix

	// Direct restricts matches to direct children of the working set.
	Direct bool
	// Union ends the current branch; the following steps start again from the root.
	Union bool
	// Getter marks a leading @name step that yields a scalar value.
	Getter bool
}

func (s Step) hasSuffix(name string) bool {
	return slices.ContainsFunc(s.Suffixes, func(x Suffix) bool { return x.Name == name })
}

// Selector is a compiled, immutable selector query.
type Selector struct {
	query string
	steps []Step
}

// String returns the source query.
func (s *Selector) String() string {
	return s.query
}

// Steps returns a copy of the compiled steps.
func (s *Selector) Steps() []Step {
	steps := make([]Step, len(s.steps))
	for i, st := range s.steps {
		st.Predicates = slices.Clone(st.Predicates)
		st.Suffixes = slices.Clone(st.Suffixes)
		steps[i] = st
	}
	return steps
}

// IsGetter reports whether the selector yields a scalar attribute value.
func (s *Selector) IsGetter() bool {
	return len(s.steps) > 0 && s.steps[0].Getter
}

// Compile parses a selector query.
// Returns EPARSE naming the offending fragment if the query is malformed.
func Compile(query string) (*Selector, error) {
	return compile(query, false)
}

// CompileDirect parses a selector query and marks every step as
// direct-child-only.
func CompileDirect(query string) (*Selector, error) {
	return compile(query, true)
}

// MustCompile is like Compile but panics if the query cannot be parsed.
func MustCompile(query string) *Selector {
	sel, err := Compile(query)
	if err != nil {
		panic(err)
	}
	return sel
}

func compile(query string, direct bool) (*Selector, error) {
	p := &parser{query: query, src: []rune(query)}
	getter := strings.HasPrefix(query, "@")

	var steps []Step
	pendingDirect := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '>':
			pendingDirect = true
			p.pos++
		case c == ',':
			if len(steps) == 0 || steps[len(steps)-1].Union || pendingDirect {
				return nil, p.errorf(p.pos, "empty branch before ','")
			}
			steps[len(steps)-1].Union = true
			p.pos++
		case isSeparator(c):
			p.pos++
		default:
			st, err := p.step()
			if err != nil {
				return nil, err
			}
			st.Direct = pendingDirect || direct
			st.Getter = getter && len(steps) == 0 && st.Attr != ""
			pendingDirect = false
			steps = append(steps, st)
		}
	}

	if len(steps) == 0 {
		return nil, Errorf(EPARSE, "empty selector %q", query)
	}
	if pendingDirect {
		return nil, p.errorf(len(p.src)-1, "'>' not followed by a step")
	}
	if steps[len(steps)-1].Union {
		return nil, p.errorf(len(p.src)-1, "',' not followed by a step")
	}

	return &Selector{query: query, steps: steps}, nil
}

type parser struct {
	query string
	src   []rune
	pos   int
}

func (p *parser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) peekAt(offset int) rune {
	if p.pos+offset >= len(p.src) {
		return 0
	}
	return p.src[p.pos+offset]
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

// errorf builds an EPARSE error quoting the fragment that starts at from and
// runs to the next unescaped separator.
func (p *parser) errorf(from int, format string, args ...any) error {
	if from < 0 {
		from = 0
	}
	if from > len(p.src) {
		from = len(p.src)
	}
	end := from
	for end < len(p.src) {
		if p.src[end] == '\\' {
			end += 2
			continue
		}
		if isSeparator(p.src[end]) {
			break
		}
		end++
	}
	if end > len(p.src) {
		end = len(p.src)
	}
	reason := ""
	if format != "" {
		reason = ": " + fmt.Sprintf(format, args...)
	}
	return Errorf(EPARSE, "failed to parse [%s], part of query [%s]%s", string(p.src[from:end]), p.query, reason)
}

func (p *parser) step() (Step, error) {
	start := p.pos
	st := Step{Index: -1}

	switch c := p.peek(); {
	case c == '*':
		st.Element = "*"
		p.pos++
	case isNameRune(c) || c == '\\':
		name, err := p.name(start)
		if err != nil {
			return st, err
		}
		// ns:name unless the text after ':' is a suffix keyword
		if p.peek() == ':' && !p.suffixAhead() {
			p.pos++
			local, err := p.name(start)
			if err != nil {
				return st, err
			}
			st.Namespace, st.Element = name, local
		} else if ns, local, ok := strings.Cut(name, ":"); ok {
			st.Namespace, st.Element = ns, local
		} else {
			st.Element = name
		}
	}

	for !p.eof() {
		c := p.peek()
		switch {
		case c == '[' && unicode.IsDigit(p.peekAt(1)):
			if st.Index >= 0 {
				return st, p.errorf(start, "duplicate ordinal")
			}
			n, err := p.index(start)
			if err != nil {
				return st, err
			}
			st.Index = n
		case c == '[':
			pred, err := p.predicate(start)
			if err != nil {
				return st, err
			}
			st.Predicates = append(st.Predicates, pred)
		case c == '@':
			if st.Attr != "" {
				return st, p.errorf(start, "duplicate attribute accessor")
			}
			p.pos++
			name, err := p.qualifiedName(start)
			if err != nil {
				return st, err
			}
			st.Attr = name
		case c == ':':
			sfx, err := p.suffix(start)
			if err != nil {
				return st, err
			}
			st.Suffixes = append(st.Suffixes, sfx)
		case isSeparator(c) || c == ',' || c == '>':
			return p.finish(st, start)
		default:
			return st, p.errorf(start, "unexpected %q", c)
		}
	}
	return p.finish(st, start)
}

func (p *parser) finish(st Step, start int) (Step, error) {
	if st.Element == "" && st.Attr == "" && len(st.Predicates) == 0 && len(st.Suffixes) == 0 && st.Index < 0 {
		return st, p.errorf(start, "empty step")
	}
	if st.Element == "" && !(strings.HasPrefix(p.query, "@") && start == 0) {
		st.Element = "*"
	}
	return st, nil
}

// name reads a run of name characters, resolving backslash escapes.
func (p *parser) name(start int) (string, error) {
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		if c == '\\' {
			if p.pos+1 >= len(p.src) {
				return "", p.errorf(start, "dangling escape")
			}
			b.WriteRune(p.src[p.pos+1])
			p.pos += 2
			continue
		}
		if !isNameRune(c) {
			break
		}
		b.WriteRune(c)
		p.pos++
	}
	if b.Len() == 0 {
		return "", p.errorf(start, "expected a name")
	}
	return b.String(), nil
}

// qualifiedName reads an attribute name with an optional "ns:" prefix.
func (p *parser) qualifiedName(start int) (string, error) {
	name, err := p.name(start)
	if err != nil {
		return "", err
	}
	if p.peek() == ':' && (isNameRune(p.peekAt(1)) || p.peekAt(1) == '\\') && !p.suffixAhead() {
		p.pos++
		local, err := p.name(start)
		if err != nil {
			return "", err
		}
		return name + ":" + local, nil
	}
	return name, nil
}

// suffixAhead reports whether the ':' at the current position starts a
// known suffix filter rather than a namespace-qualified name.
func (p *parser) suffixAhead() bool {
	i := p.pos + 1
	for i < len(p.src) && unicode.IsLetter(p.src[i]) {
		i++
	}
	_, ok := suffixArgs[string(p.src[p.pos+1:i])]
	return ok
}

func (p *parser) index(start int) (int, error) {
	p.pos++ // [
	from := p.pos
	for !p.eof() && unicode.IsDigit(p.peek()) {
		p.pos++
	}
	digits := string(p.src[from:p.pos])
	if p.peek() != ']' {
		return 0, p.errorf(start, "unterminated ordinal")
	}
	p.pos++
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, p.errorf(start, "invalid ordinal %q", digits)
	}
	return n, nil
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) predicate(start int) (Predicate, error) {
	var pred Predicate
	p.pos++ // [
	p.skipSpace()
	if p.peek() == '@' {
		p.pos++
	}
	name, err := p.qualifiedName(start)
	if err != nil {
		return pred, err
	}
	pred.Name = name
	p.skipSpace()

	if p.peek() == ']' {
		p.pos++
		pred.Op = OpExists
		return pred, nil
	}

	pred.Op = OpEqual
	for _, op := range twoCharOps {
		if p.peek() == rune(op[0]) && p.peekAt(1) == rune(op[1]) {
			pred.Op = op
			break
		}
	}
	if pred.Op == OpEqual && p.peek() != '=' {
		return pred, p.errorf(start, "expected an operator after @%s", name)
	}
	p.pos += len(pred.Op)
	p.skipSpace()

	value, err := p.value(start)
	if err != nil {
		return pred, err
	}
	pred.Value = value
	p.skipSpace()
	if p.peek() != ']' {
		return pred, p.errorf(start, "unterminated predicate")
	}
	p.pos++
	return pred, nil
}

// value reads a quoted or bare predicate value up to the closing bracket.
func (p *parser) value(start int) (string, error) {
	var b strings.Builder
	quote := p.peek()
	if quote == '"' || quote == '\'' {
		p.pos++
		for {
			if p.eof() {
				return "", p.errorf(start, "unterminated string")
			}
			c := p.peek()
			if c == '\\' && p.pos+1 < len(p.src) {
				b.WriteRune(p.src[p.pos+1])
				p.pos += 2
				continue
			}
			p.pos++
			if c == quote {
				return b.String(), nil
			}
			b.WriteRune(c)
		}
	}
	for !p.eof() && p.peek() != ']' {
		c := p.peek()
		if c == '\\' && p.pos+1 < len(p.src) {
			b.WriteRune(p.src[p.pos+1])
			p.pos += 2
			continue
		}
		b.WriteRune(c)
		p.pos++
	}
	return strings.TrimSpace(b.String()), nil
}

func (p *parser) suffix(start int) (Suffix, error) {
	var sfx Suffix
	p.pos++ // :
	from := p.pos
	for !p.eof() && unicode.IsLetter(p.peek()) {
		p.pos++
	}
	sfx.Name = string(p.src[from:p.pos])
	kind, ok := suffixArgs[sfx.Name]
	if !ok {
		return sfx, p.errorf(start, "unknown suffix %q", sfx.Name)
	}

	if p.peek() != '(' {
		if kind != argNone {
			return sfx, p.errorf(start, ":%s requires an argument", sfx.Name)
		}
		return sfx, nil
	}
	if kind == argNone {
		return sfx, p.errorf(start, ":%s takes no argument", sfx.Name)
	}

	arg, err := p.parenthesized(start)
	if err != nil {
		return sfx, err
	}
	sfx.Arg = arg

	switch kind {
	case argInt:
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return sfx, p.errorf(start, ":%s expects a non-negative integer, got %q", sfx.Name, arg)
		}
		sfx.N = n
	case argText:
		sfx.Arg = unquote(arg)
		if sfx.Arg == "" {
			return sfx, p.errorf(start, ":%s expects text", sfx.Name)
		}
	case argSelector:
		sub, err := Compile(strings.TrimSpace(arg))
		if err != nil {
			return sfx, p.errorf(start, ":%s: %s", sfx.Name, ErrorMessage(err))
		}
		sfx.sub = sub
	}
	return sfx, nil
}

// parenthesized reads a balanced (...) group and returns its inner text.
// Escapes are kept so a nested selector can resolve them itself.
func (p *parser) parenthesized(start int) (string, error) {
	p.pos++ // (
	from := p.pos
	depth := 1
	for !p.eof() {
		switch p.peek() {
		case '\\':
			p.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				arg := string(p.src[from:p.pos])
				p.pos++
				return arg, nil
			}
		}
		p.pos++
	}
	return "", p.errorf(start, "unterminated '('")
}

// unquote strips one pair of matching quotes and resolves escapes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		if rs[i] == '\\' && i+1 < len(rs) {
			i++
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

func isSeparator(c rune) bool {
	return c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNameRune(c rune) bool {
	return c == '_' || c == '-' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
