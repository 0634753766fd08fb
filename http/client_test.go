package http_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/docq"
	"github.com/fwojciec/docq/fs"
	docqhttp "github.com/fwojciec/docq/http"
	"github.com/fwojciec/docq/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>Feed</title></channel></rss>`

// newClient returns a Client caching into a fresh temporary directory.
func newClient(t *testing.T, opts ...docqhttp.Option) *docqhttp.Client {
	t.Helper()
	fc, err := fs.NewCache(t.TempDir())
	require.NoError(t, err)
	return docqhttp.NewClient(append([]docqhttp.Option{docqhttp.WithCache(docq.NewStash(fc))}, opts...)...)
}

// countingServer serves body with contentType and counts requests.
func countingServer(t *testing.T, contentType, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestClient_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("returns the response and pins it to the request", func(t *testing.T) {
		t.Parallel()

		server, _ := countingServer(t, "application/rss+xml", rss)
		client := newClient(t)
		req := docq.MustRequest(server.URL + "/feed?page=1")

		d, err := client.Fetch(context.Background(), req, docq.Forever)

		require.NoError(t, err)
		assert.True(t, d.OK())
		assert.Equal(t, http.StatusOK, d.StatusCode)
		assert.Equal(t, "application/rss+xml", d.ContentType)
		assert.Equal(t, rss, string(d.Body))
		assert.Equal(t, server.URL+"/feed?page=1", d.URL)
		assert.Equal(t, req.CacheKey(), d.CacheKey)
		assert.False(t, d.Cached)
		assert.True(t, req.Issued())
		assert.Same(t, d, req.Download())
	})

	t.Run("serves repeated requests from the cache", func(t *testing.T) {
		t.Parallel()

		// Given a fetched document
		server, hits := countingServer(t, "text/xml", rss)
		client := newClient(t)
		_, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Forever)
		require.NoError(t, err)

		// When an equivalent request is fetched
		d, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Forever)

		// Then no second request reaches the server
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())
		assert.True(t, d.Cached)
		assert.Equal(t, rss, string(d.Body))
		assert.Equal(t, "text/xml", d.ContentType)
	})

	t.Run("reuses the pinned download", func(t *testing.T) {
		t.Parallel()

		server, hits := countingServer(t, "text/xml", rss)
		client := newClient(t)
		req := docq.MustRequest(server.URL)

		first, err := client.Fetch(context.Background(), req, docq.Seconds(60))
		require.NoError(t, err)
		second, err := client.Fetch(context.Background(), req, docq.Seconds(60))
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("bypass always goes to the network and stores nothing", func(t *testing.T) {
		t.Parallel()

		server, hits := countingServer(t, "text/xml", rss)
		client := newClient(t)

		for range 2 {
			_, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Bypass)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(2), hits.Load())

		d, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Forever)
		require.NoError(t, err)
		assert.False(t, d.Cached)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("does not cache error responses", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.NotFound(w, r)
		}))
		defer server.Close()
		client := newClient(t)

		req := docq.MustRequest(server.URL)
		d, err := client.Fetch(context.Background(), req, docq.Forever)
		require.NoError(t, err)
		assert.False(t, d.OK())
		assert.Same(t, d, req.Download())

		_, err = client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Forever)
		require.NoError(t, err)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("posts parameters as a form", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			fmt.Fprintf(w, "%s|%s|%s|%s", r.Method, r.Header.Get("Content-Type"), r.PostForm.Get("q"), r.URL.RawQuery)
		}))
		defer server.Close()
		client := newClient(t)

		req := docq.MustRequest(server.URL + "/search")
		require.NoError(t, req.SetMethod(docq.MethodPost))
		require.NoError(t, req.SetParam("q", "go modules"))

		d, err := client.Fetch(context.Background(), req, docq.Bypass)

		require.NoError(t, err)
		assert.Equal(t, "POST|application/x-www-form-urlencoded|go modules|", string(d.Body))
	})

	t.Run("sends credentials, user agent and headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, _ := r.BasicAuth()
			fmt.Fprintf(w, "%s|%s|%s|%s", user, pass, r.UserAgent(), r.Header.Get("Accept"))
		}))
		defer server.Close()
		client := newClient(t, docqhttp.WithUserAgent("feedbot/2"))

		req := docq.MustRequest(server.URL)
		require.NoError(t, req.SetBasicAuth("ann", "secret"))
		require.NoError(t, req.SetHeader("Accept", "application/xml"))

		d, err := client.Fetch(context.Background(), req, docq.Bypass)

		require.NoError(t, err)
		assert.Equal(t, "ann|secret|feedbot/2|application/xml", string(d.Body))
	})

	t.Run("a request header overrides the user agent", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(r.UserAgent()))
		}))
		defer server.Close()
		client := newClient(t)

		req := docq.MustRequest(server.URL)
		require.NoError(t, req.SetHeader("User-Agent", "custom"))

		d, err := client.Fetch(context.Background(), req, docq.Bypass)

		require.NoError(t, err)
		assert.Equal(t, "custom", string(d.Body))
	})

	t.Run("respects custom timeout option", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(500 * time.Millisecond):
			}
		}))
		defer server.Close()
		client := newClient(t, docqhttp.WithTimeout(20*time.Millisecond))

		d, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Bypass)

		assert.Nil(t, d)
		assert.Equal(t, docq.EUNAVAILABLE, docq.ErrorCode(err))
	})

	t.Run("reports unreachable hosts as unavailable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		client := newClient(t)
		req := docq.MustRequest(server.URL)

		d, err := client.Fetch(context.Background(), req, docq.Forever)

		assert.Nil(t, d)
		assert.Equal(t, docq.EUNAVAILABLE, docq.ErrorCode(err))
		assert.True(t, req.Issued())
		assert.Nil(t, req.Download())
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		server, _ := countingServer(t, "text/xml", rss)
		client := newClient(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Fetch(ctx, docq.MustRequest(server.URL), docq.Bypass)

		require.Error(t, err)
	})
}

func TestClient_Parse(t *testing.T) {
	t.Parallel()

	t.Run("detects the format from the content type", func(t *testing.T) {
		t.Parallel()

		for _, tt := range []struct {
			contentType string
			body        string
			root        string
			format      docq.Format
		}{
			{"application/rss+xml", rss, "rss", docq.FormatXML},
			{"application/json", `{"title":"Feed"}`, "json", docq.FormatJSON},
			{"text/html", `<html><body><p>x</p></body></html>`, "#document", docq.FormatHTML},
		} {
			server, _ := countingServer(t, tt.contentType, tt.body)
			client := newClient(t)

			root, err := client.Parse(context.Background(), docq.MustRequest(server.URL), docq.Bypass)

			require.NoError(t, err, tt.contentType)
			assert.Equal(t, tt.root, root.Name())
			assert.Equal(t, tt.format, root.Format())
		}
	})

	t.Run("forced format overrides the content type", func(t *testing.T) {
		t.Parallel()

		server, _ := countingServer(t, "text/html", `{"title":"Feed"}`)
		client := newClient(t)
		req := docq.MustRequest(server.URL)
		require.NoError(t, req.SetFormat(docq.FormatJSON))

		root, err := client.Parse(context.Background(), req, docq.Bypass)

		require.NoError(t, err)
		v, ok, err := root.Value("title")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Feed", v)
	})

	t.Run("returns EUNSUPPORTED when the format is unknown", func(t *testing.T) {
		t.Parallel()

		server, _ := countingServer(t, "text/plain", "hello")
		client := newClient(t)

		_, err := client.Parse(context.Background(), docq.MustRequest(server.URL), docq.Bypass)

		assert.Equal(t, docq.EUNSUPPORTED, docq.ErrorCode(err))
	})

	t.Run("returns EUNAVAILABLE for error responses", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		client := newClient(t)

		_, err := client.Parse(context.Background(), docq.MustRequest(server.URL), docq.Bypass)

		assert.Equal(t, docq.EUNAVAILABLE, docq.ErrorCode(err))
	})

	t.Run("returns EPARSE for malformed documents", func(t *testing.T) {
		t.Parallel()

		server, _ := countingServer(t, "text/xml", "<rss><channel></rss>")
		client := newClient(t)

		_, err := client.Parse(context.Background(), docq.MustRequest(server.URL), docq.Bypass)

		assert.Equal(t, docq.EPARSE, docq.ErrorCode(err))
	})

	t.Run("uses registered parsers", func(t *testing.T) {
		t.Parallel()

		server, _ := countingServer(t, "text/xml", rss)
		var got string
		parser := &mock.DocumentParser{
			ParseFn: func(content string) (*docq.Element, error) {
				got = content
				return docq.NewBuilder(docq.FormatXML, "", "stub", nil).Root(), nil
			},
		}
		client := newClient(t, docqhttp.WithParser(docq.FormatXML, parser))

		root, err := client.Parse(context.Background(), docq.MustRequest(server.URL), docq.Bypass)

		require.NoError(t, err)
		assert.Equal(t, "stub", root.Name())
		assert.Equal(t, rss, got)
	})
}

func TestClient_ExecBatch(t *testing.T) {
	t.Parallel()

	t.Run("keeps input order and isolates failures", func(t *testing.T) {
		t.Parallel()

		// Given one good XML endpoint, one unreachable and one good JSON endpoint
		xmlServer, _ := countingServer(t, "text/xml", rss)
		jsonServer, _ := countingServer(t, "application/json", `{"title":"JSON"}`)
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		client := newClient(t)

		reqs := []*docq.Request{
			docq.MustRequest(xmlServer.URL),
			docq.MustRequest(dead.URL),
			docq.MustRequest(jsonServer.URL),
			nil,
		}

		// When they are fetched as a batch
		results := client.ExecBatch(context.Background(), reqs, docq.Forever)

		// Then every slot is reported in order
		require.Len(t, results, 4)
		assert.True(t, results[0].OK())
		assert.Same(t, reqs[0], results[0].Request)
		assert.Equal(t, "rss", results[0].Root.Name())

		assert.False(t, results[1].OK())
		assert.Equal(t, docq.EUNAVAILABLE, docq.ErrorCode(results[1].Err))
		assert.Nil(t, results[1].Download)

		assert.True(t, results[2].OK())
		title, _, err := results[2].Root.Value("title")
		require.NoError(t, err)
		assert.Equal(t, "JSON", title)

		assert.False(t, results[3].OK())
		assert.Equal(t, docq.EINVALID, docq.ErrorCode(results[3].Err))
	})

	t.Run("resolves cache hits without network access", func(t *testing.T) {
		t.Parallel()

		server, hits := countingServer(t, "text/xml", rss)
		client := newClient(t)
		_, err := client.Fetch(context.Background(), docq.MustRequest(server.URL+"/a"), docq.Forever)
		require.NoError(t, err)

		results := client.ExecBatch(context.Background(), []*docq.Request{
			docq.MustRequest(server.URL + "/a"),
			docq.MustRequest(server.URL + "/b"),
		}, docq.Forever)

		assert.True(t, results[0].Download.Cached)
		assert.False(t, results[1].Download.Cached)
		assert.True(t, results[0].OK())
		assert.True(t, results[1].OK())
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("caps concurrent requests", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var inFlight, peak int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(rss))
		}))
		defer server.Close()
		client := newClient(t, docqhttp.WithConcurrency(2))

		var reqs []*docq.Request
		for _, p := range []string{"/1", "/2", "/3", "/4", "/5"} {
			reqs = append(reqs, docq.MustRequest(server.URL+p))
		}

		results := client.ExecBatch(context.Background(), reqs, docq.Bypass)

		for _, r := range results {
			assert.True(t, r.OK())
		}
		mu.Lock()
		defer mu.Unlock()
		assert.LessOrEqual(t, peak, 2)
	})
}

func TestClient_ExecBatch_SlowFirstSlot(t *testing.T) {
	t.Parallel()

	// Given a batch whose first endpoint answers last
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slot":"0"}`))
	}))
	t.Cleanup(slow.Close)
	fast1, _ := countingServer(t, "application/json", `{"slot":"1"}`)
	fast2, _ := countingServer(t, "application/json", `{"slot":"2"}`)
	client := newClient(t)

	reqs := []*docq.Request{
		docq.MustRequest(slow.URL),
		docq.MustRequest(fast1.URL),
		docq.MustRequest(fast2.URL),
	}

	// When the batch runs
	results := client.ExecBatch(context.Background(), reqs, docq.Bypass)

	// Then results follow input order, not completion order
	require.Len(t, results, 3)
	for i, r := range results {
		require.True(t, r.OK(), "slot %d", i)
		assert.Same(t, reqs[i], r.Request)
		v, ok, err := r.Root.Value("slot")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), v)
	}
}

func TestClient_DefaultCache(t *testing.T) {
	t.Parallel()

	cache := &mock.Cache{}
	client := docqhttp.NewClient(docqhttp.WithCache(cache))

	assert.Same(t, cache, client.Cache())
}

func TestClient_DefaultCacheInTempDir(t *testing.T) {
	// Given no explicit cache and a private temp directory
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	server, hits := countingServer(t, "text/xml", rss)
	client := docqhttp.NewClient()

	// When a document is fetched twice
	_, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Forever)
	require.NoError(t, err)
	d, err := client.Fetch(context.Background(), docq.MustRequest(server.URL), docq.Forever)
	require.NoError(t, err)

	// Then a stash over the file cache served the second fetch
	_, ok := client.Cache().(*docq.Stash)
	assert.True(t, ok)
	assert.True(t, d.Cached)
	assert.Equal(t, int32(1), hits.Load())

	// And the entry was written under the temp directory
	files, err := filepath.Glob(filepath.Join(tmp, fs.DirName, "*.docq"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
