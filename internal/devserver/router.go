package devserver

import (
	"net/http"
	"strings"

	"github.com/Gurpartap/carecompanion/session"
)

const (
	headerAPIKey               = "X-Api-Key"
	defaultMaxRequestBodyBytes = 1 << 20
)

// Service is the agent service exposed over HTTP.
type Service interface {
	session.Transport
	Assistants() []session.Assistant
}

type RouterOptions struct {
	// APIKey, when set, must be presented in the X-Api-Key header.
	APIKey              string
	MaxRequestBodyBytes int64
}

type handlers struct {
	service      Service
	maxBodyBytes int64
}

// NewRouter serves the agent API: threads, runs, thread state, assistants
// and the /ok probe.
func NewRouter(service Service, opts RouterOptions) http.Handler {
	if opts.MaxRequestBodyBytes <= 0 {
		opts.MaxRequestBodyBytes = defaultMaxRequestBodyBytes
	}
	h := &handlers{
		service:      service,
		maxBodyBytes: opts.MaxRequestBodyBytes,
	}

	protect := apiKeyMiddleware(opts.APIKey)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok", h.handleOK)
	mux.Handle("POST /assistants/search", protect(http.HandlerFunc(h.handleSearchAssistants)))
	mux.Handle("POST /threads", protect(http.HandlerFunc(h.handleCreateThread)))
	mux.Handle("GET /threads/{thread_id}/state", protect(http.HandlerFunc(h.handleThreadState)))
	mux.Handle("POST /threads/{thread_id}/runs/wait", protect(http.HandlerFunc(h.handleRunWait)))
	mux.Handle("POST /threads/{thread_id}/runs/stream", protect(http.HandlerFunc(h.handleRunStream)))
	mux.Handle("POST /runs/stream", protect(http.HandlerFunc(h.handleRunStream)))
	return mux
}

func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(apiKey)
	if expected == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get(headerAPIKey)) != expected {
				writeMappedError(w, errUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
