package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(body)
}

func TestScrape(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("User-Agent"), "rtconsole-proxy")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer upstream.Close()

	s := NewServer(Config{})

	resp, body := get(t, s.Handler(), "/scrape?url="+url.QueryEscape(upstream.URL))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	require.Equal(t, "<html><body>hello</body></html>", body)
}

func TestScrape_BadParams(t *testing.T) {
	s := NewServer(Config{})

	resp, body := get(t, s.Handler(), "/scrape")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "missing url")

	resp, body = get(t, s.Handler(), "/scrape?url="+url.QueryEscape("ftp://example.com"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "invalid url")
}

func TestScrape_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	s := NewServer(Config{})

	resp, body := get(t, s.Handler(), "/scrape?url="+url.QueryEscape(upstream.URL))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body, "upstream returned 404")
}

func TestScrape_UpstreamUnreachable(t *testing.T) {
	// Reserve a port, then close it so the dial fails.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	s := NewServer(Config{})

	resp, body := get(t, s.Handler(), "/scrape?url="+url.QueryEscape(deadURL))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body, "fetch failed")
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "golang", r.URL.Query().Get("q"))
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.Equal(t, "1", r.URL.Query().Get("no_html"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"AbstractText":"Go"}`))
	}))
	defer upstream.Close()

	s := NewServer(Config{SearchURL: upstream.URL})

	resp, body := get(t, s.Handler(), "/proxy?q=golang")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.JSONEq(t, `{"AbstractText":"Go"}`, body)
}

func TestProxy_BadParams(t *testing.T) {
	s := NewServer(Config{})

	resp, body := get(t, s.Handler(), "/proxy")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "missing q")
}

func TestProxy_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ratelimited", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	s := NewServer(Config{SearchURL: upstream.URL})

	resp, body := get(t, s.Handler(), "/proxy?q=x")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body, "upstream returned 429")
}
