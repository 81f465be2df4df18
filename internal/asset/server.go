// Package asset implements the loopback-only HTTP asset stream server
//: thumbnail, preview, and raw file delivery by
// stable file id, gated by a per-process session token and an origin/referer
// allow-list so an embedded webview can load assets without exposing the
// filesystem to arbitrary localhost callers.
package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// Config controls the server's bind address and security allow-lists.
type Config struct {
	// Port is the loopback TCP port to bind.
	Port int
	// ThumbnailSize is the UI's configured thumbnail_size ("small",
	// "medium", "large"), forwarded to renderThumbnail.
	ThumbnailSize string
	// AllowedOrigins lists exact Origin header values the server accepts.
	// Always includes the loopback origin for Port; callers add the
	// shell's embed origin (e.g. "app://neuralfs-shell") on top.
	AllowedOrigins []string
	// AllowedRefererPrefixes lists acceptable Referer prefixes.
	AllowedRefererPrefixes []string
}

func (c Config) originAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (c Config) refererAllowed(referer string) bool {
	for _, p := range c.AllowedRefererPrefixes {
		if strings.HasPrefix(referer, p) {
			return true
		}
	}
	return false
}

// Server serves binary assets over loopback HTTP, gated by a session token
// minted once at process start.
type Server struct {
	cfg   Config
	store metadata.Store
	token string

	httpServer *http.Server
}

// NewServer constructs an asset server bound to cfg.Port. The session token
// is generated once here; callers retrieve it via Token() to hand to the
// command router's get_session_token response.
func NewServer(store metadata.Store, cfg Config) (*Server, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	loopback := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	cfg.AllowedOrigins = append(cfg.AllowedOrigins, loopback)

	s := &Server{cfg: cfg, store: store, token: token}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /thumbnail/{id}", s.handleThumbnail)
	mux.HandleFunc("GET /preview/{id}", s.handlePreview)
	mux.HandleFunc("GET /file/{id}", s.handleFile)
	mux.HandleFunc("GET /health/check", s.handleHealth)

	s.httpServer = &http.Server{
		Handler:           s.securityMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Token returns the process-lifetime session token required on every
// request besides /health/check.
func (s *Server) Token() string {
	return s.token
}

// ListenAndServe binds loopback-only and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return errors.New(errors.ErrCodeNetworkUnavailable, "failed to bind asset server", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("asset server listening", slog.String("addr", listener.Addr().String()))
	err = s.httpServer.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		return errors.New(errors.ErrCodeNetworkUnavailable, "asset server stopped unexpectedly", err)
	}
	return nil
}

// Close stops the server immediately.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// securityMiddleware enforces four checks on every request
// except the unauthenticated health probe: constant-time token match,
// Origin allow-list, Referer prefix allow-list, and response headers that
// keep an embedding webview from treating the response as executable.
func (s *Server) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "private, no-store")

		if r.URL.Path == "/health/check" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			token = r.Header.Get("X-Session-Token")
		}
		if !tokensEqual(token, s.token) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		if origin := r.Header.Get("Origin"); origin != "" && !s.cfg.originAllowed(origin) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		if referer := r.Header.Get("Referer"); referer != "" && !s.cfg.refererAllowed(referer) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) resolveFile(w http.ResponseWriter, r *http.Request) (*metadata.File, []byte, bool) {
	id := r.PathValue("id")
	file, err := s.store.GetFile(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, nil, false
	}
	// A file mid-write by another process can fail a read transiently;
	// a short retry budget covers the common editor save-then-rename
	// window without holding the response open for long.
	data, err := errors.RetryWithResult(r.Context(), errors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: 25 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}, func() ([]byte, error) {
		return os.ReadFile(file.Path)
	})
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, nil, false
	}
	return file, data, true
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	file, data, ok := s.resolveFile(w, r)
	if !ok {
		return
	}
	if file.ContentType != metadata.ContentTypeImage {
		http.Error(w, "thumbnails are only available for image assets", http.StatusUnsupportedMediaType)
		return
	}
	thumb, err := renderThumbnail(data, s.cfg.ThumbnailSize)
	if err != nil {
		http.Error(w, "failed to render thumbnail", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(thumb)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	file, data, ok := s.resolveFile(w, r)
	if !ok {
		return
	}
	if file.ContentType == metadata.ContentTypeImage {
		preview, err := renderPreview(data)
		if err != nil {
			http.Error(w, "failed to render preview", http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(preview)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(truncateText(data))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	file, data, ok := s.resolveFile(w, r)
	if !ok {
		return
	}
	ctype := mime.TypeByExtension(filepath.Ext(file.Path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	_, _ = io.Copy(w, bytes.NewReader(data))
}
