// Package proxy implements the scrape/search collaborator: two unauthenticated,
// stateless HTTP endpoints the tool handlers call so the browser-facing side
// never talks to third-party providers directly.
package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultSearchURL = "https://api.duckduckgo.com/"

type Config struct {
	Addr      string
	SearchURL string // instant-answer API base, defaults to DuckDuckGo
	Client    *http.Client
	Logger    *slog.Logger
}

type Server struct {
	config Config
	client *http.Client
	logger *slog.Logger
	mux    *http.ServeMux
	http   *http.Server
}

func NewServer(config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8081"
	}
	if config.SearchURL == "" {
		config.SearchURL = defaultSearchURL
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: config,
		client: client,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /scrape", s.handleScrape)
	s.mux.HandleFunc("GET /proxy", s.handleProxy)
	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	s.logger.Info("proxy listening", slog.String("addr", s.config.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleScrape fetches the target page once and returns its raw body as
// text. Provider failures are echoed as a 500; there is no retry.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		http.Error(w, "invalid url parameter", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; rtconsole-proxy)")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("scrape fetch failed", slog.String("url", target), slog.Any("err", err))
		http.Error(w, fmt.Sprintf("fetch failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		http.Error(w, fmt.Sprintf("upstream returned %s", resp.Status), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("scrape response copy failed", slog.Any("err", err))
	}
}

// handleProxy forwards the query to the instant-answer API and passes the
// JSON through untouched.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.config.SearchURL+"?"+q.Encode(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("instant-answer fetch failed", slog.Any("err", err))
		http.Error(w, fmt.Sprintf("fetch failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		http.Error(w, fmt.Sprintf("upstream returned %s", resp.Status), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("proxy response copy failed", slog.Any("err", err))
	}
}
