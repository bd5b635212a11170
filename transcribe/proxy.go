package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadBytes bounds an audio upload accepted by the proxy.
const MaxUploadBytes = 25 << 20

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// non-audio containers browsers record voice into
var audioContainers = map[string]struct{}{
	"video/webm":      {},
	"video/mp4":       {},
	"application/ogg": {},
}

type proxyHandler struct {
	transcriber Transcriber
	logger      *slog.Logger
}

// NewProxyHandler accepts a multipart upload with an audio "file" field,
// forwards it to transcriber, and answers {"text": ...} or {"error": ...}.
func NewProxyHandler(transcriber Transcriber, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &proxyHandler{transcriber: transcriber, logger: logger}
}

func (h *proxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+1<<20)
	file, header, err := r.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResponse(w, http.StatusRequestEntityTooLarge, Response{Error: "File too large"})
			return
		}
		writeResponse(w, http.StatusBadRequest, Response{Error: "No file uploaded"})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, Response{Error: "No file uploaded"})
		return
	}
	if len(audio) == 0 {
		writeResponse(w, http.StatusBadRequest, Response{Error: "No file uploaded"})
		return
	}
	if len(audio) > MaxUploadBytes {
		writeResponse(w, http.StatusRequestEntityTooLarge, Response{Error: "File too large"})
		return
	}

	detected := mimetype.Detect(audio)
	if !isAudio(detected) {
		writeResponse(w, http.StatusUnsupportedMediaType, Response{Error: "Unsupported media type: " + detected.String()})
		return
	}

	text, err := h.transcriber.Transcribe(r.Context(), header.Filename, bytes.NewReader(audio))
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			h.logger.WarnContext(r.Context(), "transcription rejected", slog.String("error", serviceErr.Message))
			writeResponse(w, http.StatusOK, Response{Error: serviceErr.Message})
			return
		}
		h.logger.ErrorContext(r.Context(), "transcription proxy failed", slog.Any("error", err))
		writeResponse(w, http.StatusInternalServerError, Response{Error: "Transcription service failed"})
		return
	}

	h.logger.DebugContext(r.Context(), "audio transcribed",
		slog.String("mime", detected.String()),
		slog.Int("bytes", len(audio)),
		slog.Int("text_bytes", len(text)),
	)
	writeResponse(w, http.StatusOK, Response{Text: text})
}

func isAudio(detected *mimetype.MIME) bool {
	for current := detected; current != nil; current = current.Parent() {
		mime := current.String()
		if strings.HasPrefix(mime, "audio/") {
			return true
		}
		if _, ok := audioContainers[mime]; ok {
			return true
		}
	}
	return false
}

func writeResponse(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
