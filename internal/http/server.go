package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	appweb "expenses/web"
)

// DefaultMaxBodyBytes caps request bodies at 1 MiB.
const DefaultMaxBodyBytes int64 = 1 << 20

// ExpenseAPI is what the handlers need from the service layer.
type ExpenseAPI interface {
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, id int64) (core.Expense, error)
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Addr               string
	CORSOrigins        []string
	RateLimitPerMinute int // 0 disables rate limiting
	MaxBodyBytes       int64
}

type Server struct {
	http.Server
	svc          ExpenseAPI
	logger       *log.Logger
	templates    *template.Template
	maxBodyBytes int64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime  time.Time
	created atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, svc ExpenseAPI, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server:           http.Server{Addr: opts.Addr},
		svc:              svc,
		logger:           logger.WithComponent(log.ComponentHTTP),
		maxBodyBytes:     opts.MaxBodyBytes,
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/health", s.handleHealth)
	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	api.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	api.HandleFunc("/api/", s.handleAPIFallback)
	mux.Handle("/api/", security.NoStore(api))

	var handler http.Handler = mux
	if opts.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
		handler = s.rateLimiter.Middleware(
			s.securityDetector.ExtractClientIP,
			[]string{http.MethodPost, http.MethodPut, http.MethodDelete},
			s.onRateLimited,
		)(handler)
	}
	handler = security.CORS(opts.CORSOrigins)(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Handler = handler
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
