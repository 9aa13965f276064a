package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"dompet/internal/cache"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/metrics"
	"dompet/internal/middleware/ratelimit"
	"dompet/internal/middleware/security"
	"dompet/internal/middleware/trace"
	"dompet/internal/ports"
	appweb "dompet/web"
)

// Store is what the server needs from a backend.
type Store interface {
	ports.Transactions
	ports.AIResponseLister
	ports.AIResponseCreator
	Ping(ctx context.Context) error
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr               string
	Logger             *log.Logger
	Metrics            *metrics.Metrics
	RateLimitPerMinute int
	CacheSize          int
	CacheTTL           time.Duration
	// Location is used to show dates and parse form dates.
	Location *time.Location
	Now      func() time.Time
}

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 30 * time.Second
	backendTimeout   = 7 * time.Second
	aiTimelineKey    = "all"
)

type Server struct {
	http.Server
	store     Store
	templates *template.Template
	logger    *log.Logger
	slog      *log.StructuredLogger
	metrics   *metrics.Metrics
	location  *time.Location
	now       func() time.Time
	started   time.Time

	pageCache *cache.LRUCache[core.TransactionPage]
	aiCache   *cache.LRUCache[[]core.AIResponse]
	caches    *cache.Manager

	// aiMu serializes updates of the cached AI timeline; aiGen counts
	// creates so a list loaded before one is not cached after it.
	aiMu  sync.Mutex
	aiGen uint64

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires routes and middleware.
func NewServer(store Store, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("http server: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		store:       store,
		templates:   tmpl,
		logger:      logger,
		slog:        log.NewStructuredLogger(logger),
		metrics:     opts.Metrics,
		location:    opts.Location,
		now:         opts.Now,
		started:     opts.Now(),
		pageCache:   cache.NewLRUCache[core.TransactionPage](opts.CacheSize, opts.CacheTTL),
		aiCache:     cache.NewLRUCache[[]core.AIResponse](4, opts.CacheTTL),
		caches:      cache.NewManager(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:    security.NewDetector(),
	}
	s.caches.Register(s.pageCache)
	s.caches.Register(s.aiCache)
	s.caches.StartCleanup(5 * time.Minute)

	if err := s.metrics.RegisterCache("transaction_pages", s.pageCache.Stats); err != nil {
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}
	if err := s.metrics.RegisterCache("ai_timeline", s.aiCache.Stats); err != nil {
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		return nil, err
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(trace.CaptureRoute(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// UI partials and form targets
	mux.HandleFunc("GET /ui/summary", s.handleSummary)
	mux.HandleFunc("GET /ui/transactions", s.handleTransactionList)
	mux.HandleFunc("GET /ui/transactions/{id}/edit", s.handleEditTransaction)
	mux.HandleFunc("GET /ui/format-amount", s.handleFormatAmount)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("POST /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /ui/assistant", s.handleAssistant)
	mux.HandleFunc("POST /ui/assistant", s.handleCreateAssistantResponse)

	// JSON API, same envelope as the upstream finance API
	mux.HandleFunc("GET /api/transactions", s.handleAPIListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleAPICreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleAPIGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleAPIUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleAPIDeleteTransaction)
	mux.HandleFunc("GET /api/ai-responses", s.handleAPIListAIResponses)
	mux.HandleFunc("POST /api/ai-responses", s.handleAPICreateAIResponse)
	return nil
}

// middleware wraps h, outermost first: logger in context, tracing, request
// id on the logger, security headers, probe detection, rate limiting.
func (s *Server) middleware(h http.Handler) http.Handler {
	tracer := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP, s.metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, s.onRateLimited)

	h = limit(h)
	h = s.detector.Middleware(s.logger, s.metrics.SuspiciousRequest)(h)
	h = headers.Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = tracer.Middleware(h)
	return log.Middleware(s.logger)(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	if isAPI(r) {
		writeAPIError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	ErrorResponse(http.StatusTooManyRequests, "Terlalu banyak permintaan, coba lagi sebentar.").
		TriggerErrorNotification("Terlalu banyak permintaan").
		Write(w)
}

// invalidateTransactions drops cached pages after a write. Stored AI
// responses are unaffected.
func (s *Server) invalidateTransactions() {
	s.pageCache.Purge()
}

// Shutdown stops background goroutines and the HTTP server. It is safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Close releases background goroutines without a listening server; used by
// tests that only call Handler.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}
