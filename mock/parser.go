package mock

import "github.com/fwojciec/docq"

var _ docq.DocumentParser = (*DocumentParser)(nil)

// DocumentParser is a mock implementation of docq.DocumentParser.
type DocumentParser struct {
	ParseFn func(content string) (*docq.Element, error)
}

func (p *DocumentParser) Parse(content string) (*docq.Element, error) {
	return p.ParseFn(content)
}
