package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gurpartap/carecompanion/transcribe"
)

type Options struct {
	Addr   string
	APIKey string
	Logger *slog.Logger
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
	// Transcriber backs /api/transcribe when set.
	Transcriber transcribe.Transcriber
}

// App owns the development server and its lifecycle.
type App struct {
	logger  *slog.Logger
	service Service
	server  *http.Server
	ready   atomic.Bool
}

func New(service Service, opts Options) (*App, error) {
	if service == nil {
		return nil, errors.New("new app: nil service")
	}
	if opts.Addr == "" {
		return nil, errors.New("new app: empty Addr")
	}
	if opts.Logger == nil {
		return nil, errors.New("new app: nil logger")
	}

	a := &App{
		logger:  opts.Logger,
		service: service,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Transcriber != nil {
		mux.Handle("POST /api/transcribe", transcribe.NewProxyHandler(opts.Transcriber, opts.Logger))
	}
	mux.Handle("/", NewRouter(service, RouterOptions{APIKey: opts.APIKey}))

	a.server = &http.Server{
		Addr:    opts.Addr,
		Handler: requestLoggingMiddleware(opts.Logger)(mux),
	}
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Start() error {
	a.ready.Store(true)
	a.logger.Info("development server listening", slog.String("addr", a.server.Addr))

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	a.ready.Store(false)
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown: nil context")
	}
	a.ready.Store(false)

	err := a.server.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("graceful shutdown timed out; forcing connection close")
		if closeErr := a.server.Close(); closeErr != nil {
			return fmt.Errorf("shutdown timeout and forced close failed: %w", errors.Join(err, closeErr))
		}
		return nil
	}
	return err
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writePlain(w, http.StatusOK, "ok")
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !a.ready.Load() {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
