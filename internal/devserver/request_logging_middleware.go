package devserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// agentRoute is what a request path says about the turn it serves.
type agentRoute struct {
	operation string
	threadID  string
	stateless bool
}

func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(recorder, r)

			status := recorder.statusCode()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", recorder.bytes),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			route := routeFromPath(r.URL.Path)
			if route.operation != "" {
				attrs = append(attrs, slog.String("operation", route.operation))
			}
			if route.threadID != "" {
				attrs = append(attrs, slog.String("thread_id", route.threadID))
			}
			if route.stateless {
				attrs = append(attrs, slog.Bool("stateless", true))
			}
			if recorder.flushes > 0 {
				attrs = append(attrs, slog.Int("stream_flushes", recorder.flushes))
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	flushes int
}

func (w *responseRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *responseRecorder) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Flush counts stream frames pushed to the client.
func (w *responseRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		w.flushes++
		flusher.Flush()
	}
}

func routeFromPath(path string) agentRoute {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "runs" && parts[1] == "stream":
		return agentRoute{operation: "run_stream", stateless: true}
	case len(parts) == 2 && parts[0] == "assistants" && parts[1] == "search":
		return agentRoute{operation: "search_assistants"}
	case len(parts) == 1 && parts[0] == "threads":
		return agentRoute{operation: "create_thread"}
	case len(parts) < 3 || parts[0] != "threads" || parts[1] == "":
		return agentRoute{}
	}

	route := agentRoute{threadID: parts[1]}
	switch strings.Join(parts[2:], "/") {
	case "state":
		route.operation = "thread_state"
	case "runs/wait":
		route.operation = "run_wait"
	case "runs/stream":
		route.operation = "run_stream"
	}
	return route
}
