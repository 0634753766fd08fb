package docq

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Method is an HTTP request method supported by a Request.
type Method string

// Method constants.
const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Fetcher retrieves the document described by a Request, consulting a
// cache according to ttl.
type Fetcher interface {
	// Fetch returns the download for req. A transport failure returns a nil
	// Download and an EUNAVAILABLE error; an HTTP error status is reported
	// through Download.OK.
	Fetch(ctx context.Context, req *Request, ttl TTL) (*Download, error)
}

// Download is the outcome of a completed HTTP exchange.
type Download struct {
	StatusCode  int
	ContentType string
	Body        []byte
	URL         string
	CacheKey    string
	// Cached is true when the download was served from a cache.
	Cached bool
}

// OK reports whether the response status was 2xx.
func (d *Download) OK() bool {
	return d != nil && d.StatusCode >= 200 && d.StatusCode < 300
}

// Result is one slot of a batch fetch.
type Result struct {
	Request  *Request
	Download *Download
	Root     *Element
	Err      error
}

// OK reports whether the slot was fetched and parsed successfully.
func (r *Result) OK() bool {
	return r.Err == nil && r.Download.OK() && r.Root != nil
}

// Request describes a remote document. It can be configured until it is
// first fetched; afterwards every setter fails with EINVALID and the
// download it produced stays pinned to it.
type Request struct {
	mu       sync.Mutex
	url      string
	method   Method
	header   map[string]string
	params   url.Values
	user     string
	pass     string
	format   Format
	issued   bool
	download *Download
}

// NewRequest parses rawURL. Credentials in the userinfo become basic-auth
// credentials and the query string becomes request parameters.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, Errorf(EINVALID, "invalid URL %q: %v", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, Errorf(EINVALID, "unsupported URL scheme in %q", rawURL)
	}
	if u.Host == "" {
		return nil, Errorf(EINVALID, "URL %q has no host", rawURL)
	}

	r := &Request{
		method: MethodGet,
		header: make(map[string]string),
		params: u.Query(),
	}
	if u.User != nil {
		r.user = u.User.Username()
		r.pass, _ = u.User.Password()
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	r.url = u.String()
	return r, nil
}

// MustRequest is NewRequest that panics on error.
func MustRequest(rawURL string) *Request {
	r, err := NewRequest(rawURL)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Request) mutable() error {
	if r.issued {
		return Errorf(EINVALID, "request %s has already been issued", r.url)
	}
	return nil
}

// SetMethod selects GET or POST.
func (r *Request) SetMethod(m Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	switch m := Method(strings.ToUpper(string(m))); m {
	case MethodGet, MethodPost:
		r.method = m
		return nil
	}
	return Errorf(EINVALID, "unsupported method %q", m)
}

// SetHeader sets a request header.
func (r *Request) SetHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.header[name] = value
	return nil
}

// SetParam sets a request parameter, replacing previous values.
func (r *Request) SetParam(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.params.Set(name, value)
	return nil
}

// SetBasicAuth sets basic-auth credentials.
func (r *Request) SetBasicAuth(user, pass string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	r.user, r.pass = user, pass
	return nil
}

// SetFormat forces the document format, skipping content-type detection.
func (r *Request) SetFormat(f Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutable(); err != nil {
		return err
	}
	switch f {
	case FormatUnknown, FormatXML, FormatJSON, FormatHTML:
		r.format = f
		return nil
	}
	return Errorf(EINVALID, "unsupported format %q", f)
}

// URL returns the endpoint without credentials or query string.
func (r *Request) URL() string { return r.url }

// Method returns the request method.
func (r *Request) Method() Method {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method
}

// Header returns a copy of the request headers.
func (r *Request) Header() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.header)
}

// Params returns a copy of the request parameters.
func (r *Request) Params() url.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneValues(r.params)
}

// BasicAuth returns the credentials, with ok false when none are set.
func (r *Request) BasicAuth() (user, pass string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user, r.pass, r.user != ""
}

// Format returns the forced format, or FormatUnknown.
func (r *Request) Format() Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// Issued reports whether the request has been fetched.
func (r *Request) Issued() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issued
}

// Target returns the URL the request is sent to: parameters are appended as
// a query string for GET and sent as a form body for POST.
func (r *Request) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target()
}

func (r *Request) target() string {
	qs := r.params.Encode()
	if r.method == MethodGet && qs != "" {
		return r.url + "?" + qs
	}
	return r.url
}

// CacheKey identifies the request in a cache. It covers the method, the
// credentials, the target URL and the parameters.
func (r *Request) CacheKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := xxhash.New()
	for _, s := range []string{strings.ToLower(string(r.method)), r.user, r.pass, r.target(), r.params.Encode()} {
		_, _ = h.WriteString(s)
		_, _ = h.WriteString("\x00")
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// Download returns the pinned download, or nil when the request has not
// been fetched successfully.
func (r *Request) Download() *Download {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.download
}

// Pin marks the request as issued and, when d is not nil, pins d to it.
// Fetcher implementations call Pin after every fetch attempt.
func (r *Request) Pin(d *Download) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = true
	if d != nil {
		r.download = d
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
