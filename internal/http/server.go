package http

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"budget/internal/auth"
	"budget/internal/ledger"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/services"
)

// Server wraps http.Server with the application's routes and the middleware
// whose lifetime it owns.
type Server struct {
	http.Server

	auth         *auth.Service
	transactions *services.TransactionService
	ready        ledger.Pinger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	secureCookie bool

	shutdownOnce sync.Once
}

// Options configures NewServer. Auth and Transactions are required.
type Options struct {
	Addr         string
	Auth         *auth.Service
	Transactions *services.TransactionService
	// Ready is pinged by /readyz. Nil means always ready.
	Ready ledger.Pinger
	// RateLimitPerMinute applies per client IP to mutating requests. Zero
	// uses the limiter default.
	RateLimitPerMinute int
	SecureCookie       bool
	// Static holds the front end. Nil disables it.
	Static fs.FS
	// TrustedProxies extends the networks whose forwarded headers are honoured.
	TrustedProxies []string
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			slog.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		auth:         opts.Auth,
		transactions: opts.Transactions,
		ready:        opts.Ready,
		limiter:      ratelimit.NewLimiter(rlConfig),
		detector:     detector,
		secureCookie: opts.SecureCookie,
	}
	s.tracer = trace.NewMiddleware(detector.ClientIP)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts.Static),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.limitMutations)

		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireOwner)
			r.Get("/me", s.handleMe)
			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/dashboard/chart.png", s.handleDashboardChart)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeMessage(w, r, http.StatusNotFound, "Not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeMessage(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		})
	})

	if static != nil {
		r.Group(func(r chi.Router) {
			r.Use(security.StaticAssetMiddleware(3600))
			r.Get("/", s.servePage(static, "login.html"))
			r.Get("/signup", s.servePage(static, "signup.html"))
			r.Get("/dashboard", s.servePage(static, "dashboard.html"))
			r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
		})
	}
	return r
}

// limitMutations applies the per-IP rate limit to every request that is not
// a read.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			"client_ip", s.detector.ClientIP(r),
			"method", r.Method,
			"url", r.URL.Path)
		writeMessage(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Metrics returns the request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
