package slog

import (
	"log/slog"
	"time"

	"github.com/fwojciec/docq"
)

// Ensure LoggingParser implements docq.DocumentParser.
var _ docq.DocumentParser = (*LoggingParser)(nil)

// LoggingParser wraps a DocumentParser with debug logging.
type LoggingParser struct {
	next   docq.DocumentParser
	format docq.Format
	logger *slog.Logger
}

// NewLoggingParser creates a new LoggingParser. format labels the log lines.
func NewLoggingParser(next docq.DocumentParser, format docq.Format, logger *slog.Logger) *LoggingParser {
	return &LoggingParser{next: next, format: format, logger: logger}
}

// Parse delegates to the wrapped parser and logs the operation.
func (p *LoggingParser) Parse(content string) (root *docq.Element, err error) {
	defer func(begin time.Time) {
		nodes := 0
		if root != nil {
			nodes = len(root.Descendants("*", false))
		}
		p.logger.Debug("parse",
			"format", string(p.format),
			"bytes", len(content),
			"nodes", nodes,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return p.next.Parse(content)
}
