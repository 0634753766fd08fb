// Package http provides the docq download manager: an HTTP-based
// docq.Fetcher that consults a docq.Cache, parses responses with the
// registered backends and fetches batches concurrently.
package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/docq"
	"github.com/fwojciec/docq/etree"
	"github.com/fwojciec/docq/fs"
	"github.com/fwojciec/docq/gjson"
	"github.com/fwojciec/docq/goquery"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is the default total timeout of one request.
const DefaultTimeout = 30 * time.Second

// DefaultConnectTimeout is the default timeout for establishing a connection.
const DefaultConnectTimeout = 30 * time.Second

// DefaultUserAgent is sent unless a request sets its own User-Agent header.
const DefaultUserAgent = "docq/1.0"

// Ensure Client implements docq.Fetcher at compile time.
var _ docq.Fetcher = (*Client)(nil)

// Client fetches, caches and parses remote documents.
type Client struct {
	client         *http.Client
	timeout        time.Duration
	connectTimeout time.Duration
	userAgent      string
	limiter        *HostLimiter
	concurrency    int
	parsers        map[docq.Format]docq.DocumentParser
	logger         *slog.Logger

	cache     docq.Cache
	cacheOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithCache sets the cache. Without it a docq.Stash over an fs.Cache in the
// OS temp directory is created on first use.
func WithCache(cache docq.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithHTTPClient replaces the underlying *http.Client. Its own timeouts
// apply instead of WithTimeout and WithConnectTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the total timeout of one request.
// Defaults to DefaultTimeout (30s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithConnectTimeout sets the timeout for establishing a connection.
// Defaults to DefaultConnectTimeout (30s) if not specified.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithRateLimit limits requests to rps per second for each host.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = NewHostLimiter(rps)
	}
}

// WithConcurrency caps the number of requests ExecBatch runs at once.
// Zero or less means no cap.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		c.concurrency = n
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithParser registers the backend used for format.
func WithParser(format docq.Format, parser docq.DocumentParser) Option {
	return func(c *Client) {
		c.parsers[format] = parser
	}
}

// WithLogger sets the logger used to report degraded cache operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		connectTimeout: DefaultConnectTimeout,
		userAgent:      DefaultUserAgent,
		parsers: map[docq.Format]docq.DocumentParser{
			docq.FormatXML:  etree.NewParser(),
			docq.FormatJSON: gjson.NewParser(),
			docq.FormatHTML: goquery.NewParser(),
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{Timeout: c.connectTimeout}).DialContext
		c.client = &http.Client{
			Timeout:   c.timeout,
			Transport: transport,
		}
	}

	return c
}

// Cache returns the cache in use, building the default one on first call.
// It returns nil when the default cache cannot be created.
func (c *Client) Cache() docq.Cache {
	c.cacheOnce.Do(func() {
		if c.cache != nil {
			return
		}
		fc, err := fs.NewCache(os.TempDir())
		if err != nil {
			c.logger.Warn("default cache unavailable", "err", err)
			return
		}
		c.cache = docq.NewStash(fc)
	})
	return c.cache
}

// Fetch implements docq.Fetcher. With a cacheable ttl a download already
// pinned to req, or a cached one, is returned without network I/O.
func (c *Client) Fetch(ctx context.Context, req *docq.Request, ttl docq.TTL) (*docq.Download, error) {
	if ttl.Cacheable() {
		if d := c.lookup(ctx, req); d != nil {
			return d, nil
		}
	}
	return c.download(ctx, req, ttl)
}

// Parse fetches req and parses the body. The format forced on req wins;
// otherwise it is detected from the response.
func (c *Client) Parse(ctx context.Context, req *docq.Request, ttl docq.TTL) (*docq.Element, error) {
	d, err := c.Fetch(ctx, req, ttl)
	if err != nil {
		return nil, err
	}
	return c.parse(req, d)
}

// ExecBatch fetches and parses reqs concurrently. Cache hits are resolved
// before any request is sent. Results are returned in input order and a
// failed slot never affects the others.
func (c *Client) ExecBatch(ctx context.Context, reqs []*docq.Request, ttl docq.TTL) []*docq.Result {
	results := make([]*docq.Result, len(reqs))
	var pending []int
	for i, req := range reqs {
		results[i] = &docq.Result{Request: req}
		if req == nil {
			results[i].Err = docq.Errorf(docq.EINVALID, "request %d is nil", i)
			continue
		}
		if ttl.Cacheable() {
			if d := c.lookup(ctx, req); d != nil {
				c.complete(results[i], d)
				continue
			}
		}
		pending = append(pending, i)
	}

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for _, i := range pending {
		g.Go(func() error {
			d, err := c.download(ctx, reqs[i], ttl)
			if err != nil {
				results[i].Err = err
				return nil
			}
			c.complete(results[i], d)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Client) complete(r *docq.Result, d *docq.Download) {
	r.Download = d
	r.Root, r.Err = c.parse(r.Request, d)
}

func (c *Client) parse(req *docq.Request, d *docq.Download) (*docq.Element, error) {
	if !d.OK() {
		return nil, docq.Errorf(docq.EUNAVAILABLE, "HTTP %d for %s", d.StatusCode, d.URL)
	}

	format := req.Format()
	if format == docq.FormatUnknown {
		var err error
		if format, err = DetectFormat(d.ContentType, d.Body); err != nil {
			return nil, err
		}
	}

	parser, ok := c.parsers[format]
	if !ok {
		return nil, docq.Errorf(docq.EUNSUPPORTED, "no parser registered for format %q", format)
	}
	return parser.Parse(string(d.Body))
}

// lookup returns the download pinned to req or stored in the cache.
func (c *Client) lookup(ctx context.Context, req *docq.Request) *docq.Download {
	if d := req.Download(); d != nil {
		return d
	}

	cache := c.Cache()
	if cache == nil {
		return nil
	}
	key := req.CacheKey()
	e, err := cache.Get(ctx, key)
	if err != nil {
		if docq.ErrorCode(err) != docq.ENOTFOUND {
			c.logger.Warn("cache read failed", "key", key, "err", err)
		}
		return nil
	}

	var d docq.Download
	if err := json.Unmarshal(e.Value, &d); err != nil {
		c.logger.Warn("cache entry unreadable", "key", key, "err", err)
		return nil
	}
	d.Cached = true
	d.CacheKey = key
	req.Pin(&d)
	return &d
}

// download performs the HTTP exchange, pins the outcome to req and caches
// successful responses.
func (c *Client) download(ctx context.Context, req *docq.Request, ttl docq.TTL) (*docq.Download, error) {
	d, err := c.do(ctx, req)
	req.Pin(d)
	if err != nil {
		return nil, err
	}
	if d.OK() && ttl.Cacheable() {
		c.store(ctx, d, ttl)
	}
	return d, nil
}

func (c *Client) store(ctx context.Context, d *docq.Download, ttl docq.TTL) {
	cache := c.Cache()
	if cache == nil {
		return
	}
	value, err := json.Marshal(d)
	if err != nil {
		c.logger.Warn("cache entry not encodable", "key", d.CacheKey, "err", err)
		return
	}
	if _, err := cache.Set(ctx, d.CacheKey, value, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", d.CacheKey, "err", err)
	}
}

func (c *Client) do(ctx context.Context, req *docq.Request) (*docq.Download, error) {
	target := req.Target()
	if c.limiter != nil {
		if err := c.limiter.WaitURL(ctx, target); err != nil {
			if docq.ErrorCode(err) == docq.EINVALID {
				return nil, err
			}
			return nil, docq.Errorf(docq.EUNAVAILABLE, "request to %s not sent: %v", target, err)
		}
	}

	var body io.Reader
	if req.Method() == docq.MethodPost {
		body = strings.NewReader(req.Params().Encode())
	}
	hreq, err := http.NewRequestWithContext(ctx, string(req.Method()), target, body)
	if err != nil {
		return nil, docq.Errorf(docq.EINVALID, "invalid request for %s: %v", target, err)
	}
	if body != nil {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	hreq.Header.Set("User-Agent", c.userAgent)
	for name, value := range req.Header() {
		hreq.Header.Set(name, value)
	}
	if user, pass, ok := req.BasicAuth(); ok {
		hreq.SetBasicAuth(user, pass)
	}

	resp, err := c.client.Do(hreq)
	if err != nil {
		return nil, docq.Errorf(docq.EUNAVAILABLE, "request to %s failed: %v", target, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docq.Errorf(docq.EUNAVAILABLE, "reading response from %s: %v", target, err)
	}

	return &docq.Download{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        content,
		URL:         target,
		CacheKey:    req.CacheKey(),
	}, nil
}
