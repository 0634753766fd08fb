package http

import (
	"bytes"
	"strings"

	"github.com/fwojciec/docq"
)

var xmlContentTypes = []string{"text/xml", "application/rss+xml", "xml"}

var jsonContentTypes = []string{
	"text/javascript",
	"application/x-javascript",
	"application/json",
	"text/x-javascript",
	"text/x-json",
	"json",
}

// DetectFormat picks the backend for a response. The declared content type
// wins when it names a known family; otherwise the first non-space byte of
// body decides. Returns EUNSUPPORTED when neither is conclusive.
func DetectFormat(contentType string, body []byte) (docq.Format, error) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	if mediaType != "" {
		switch {
		case containsAny(mediaType, xmlContentTypes):
			return docq.FormatXML, nil
		case containsAny(mediaType, jsonContentTypes):
			return docq.FormatJSON, nil
		case mediaType == "text/html":
			return docq.FormatHTML, nil
		}
	}

	return sniff(body)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sniff(body []byte) (docq.Format, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return docq.FormatUnknown, docq.Errorf(docq.EUNSUPPORTED, "unable to determine content type of an empty document")
	}

	switch trimmed[0] {
	case '{', '[':
		return docq.FormatJSON, nil
	case '<':
		head := strings.ToLower(string(trimmed[:min(len(trimmed), 512)]))
		if strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") {
			return docq.FormatHTML, nil
		}
		return docq.FormatXML, nil
	}
	return docq.FormatUnknown, docq.Errorf(docq.EUNSUPPORTED, "unable to determine content type; force one with Request.SetFormat")
}
