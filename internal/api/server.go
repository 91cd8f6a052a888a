package api

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/awwvision/internal/gallery"
	"github.com/JakeFAU/awwvision/internal/metrics"
	"github.com/JakeFAU/awwvision/internal/scrape"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	requestTimeout  = 5 * time.Minute
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Scraper runs one fetch-label-store pass.
type Scraper interface {
	Scrape(ctx context.Context) (scrape.Report, error)
}

// Lister enumerates stored objects for the gallery.
type Lister interface {
	ListAll(ctx context.Context) ([]scrape.StoredObject, error)
}

// Deps are the collaborators the server reads from. Images and History are optional.
type Deps struct {
	Scraper Scraper
	Store   Lister
	Images  scrape.ObjectReader
	History scrape.RunHistory
}

// Server wires HTTP handlers to the pipeline and store.
type Server struct {
	router   chi.Router
	deps     Deps
	logger   *zap.Logger
	scrapeMu sync.Mutex
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", s.index)
	r.Get("/label/{label}", s.byLabel)
	r.Get("/reddit", s.scrapeHTML)
	if deps.Images != nil {
		r.Get("/images/*", s.image)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrapeJSON)
		r.Get("/images", s.listImages)
		r.Get("/runs", s.listRuns)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Scraper == nil || s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type galleryPage struct {
	Title  string
	Active string
	Images []gallery.Image
	Labels []gallery.LabelCount
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	images, err := s.images(r.Context())
	if err != nil {
		s.logger.Error("list images failed", zap.Error(err))
		http.Error(w, "could not list images", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "gallery.html", galleryPage{
		Title:  "All images",
		Images: images,
		Labels: gallery.Labels(images),
	})
}

func (s *Server) byLabel(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	images, err := s.images(r.Context())
	if err != nil {
		s.logger.Error("list images failed", zap.String("label", label), zap.Error(err))
		http.Error(w, "could not list images", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "gallery.html", galleryPage{
		Title:  "Images labeled " + label,
		Active: label,
		Images: gallery.FilterByLabel(images, label),
		Labels: gallery.Labels(images),
	})
}

type outcomeCount struct {
	Outcome scrape.Outcome
	Count   int
}

type scrapePage struct {
	Report scrape.Report
	Counts []outcomeCount
}

func (s *Server) scrapeHTML(w http.ResponseWriter, r *http.Request) {
	report, status, err := s.runScrape(r.Context())
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	counts := make([]outcomeCount, 0, len(scrape.Outcomes))
	for _, o := range scrape.Outcomes {
		if n := report.Count(o); n > 0 {
			counts = append(counts, outcomeCount{Outcome: o, Count: n})
		}
	}
	s.render(w, http.StatusOK, "scrape.html", scrapePage{Report: report, Counts: counts})
}

func (s *Server) scrapeJSON(w http.ResponseWriter, r *http.Request) {
	report, status, err := s.runScrape(r.Context())
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// runScrape allows one pass at a time; overlapping requests get 409.
func (s *Server) runScrape(ctx context.Context) (scrape.Report, int, error) {
	if s.deps.Scraper == nil {
		return scrape.Report{}, http.StatusServiceUnavailable, errors.New("pipeline not configured")
	}
	if !s.scrapeMu.TryLock() {
		return scrape.Report{}, http.StatusConflict, errors.New("scrape already running")
	}
	defer s.scrapeMu.Unlock()

	report, err := s.deps.Scraper.Scrape(ctx)
	if err != nil {
		s.logger.Error("scrape failed", zap.Error(err))
		if errors.Is(err, scrape.ErrFetch) {
			return scrape.Report{}, http.StatusBadGateway, errors.New("feed fetch failed")
		}
		return scrape.Report{}, http.StatusInternalServerError, errors.New("scrape failed")
	}
	return report, http.StatusOK, nil
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.images(r.Context())
	if err != nil {
		s.logger.Error("list images failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list images")
		return
	}
	all := images
	if label := strings.TrimSpace(r.URL.Query().Get("label")); label != "" {
		images = gallery.FilterByLabel(images, label)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"images": images,
		"labels": gallery.Labels(all),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.deps.History.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []scrape.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	rc, contentType, err := s.deps.Images.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Warn("open image failed", zap.String("name", name), zap.Error(err))
		http.Error(w, "could not read image", http.StatusInternalServerError)
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Debug("close image failed", zap.String("name", name), zap.Error(cerr))
		}
	}()
	if contentType == "" {
		contentType = scrape.ImageContentType
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("write image failed", zap.String("name", name), zap.Error(err))
	}
}

func (s *Server) images(ctx context.Context) ([]gallery.Image, error) {
	if s.deps.Store == nil {
		return nil, errors.New("store not configured")
	}
	objs, err := s.deps.Store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list store: %w", err)
	}
	return gallery.FromObjects(objs), nil
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write page failed", zap.String("template", name), zap.Error(err))
	}
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
