package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/transport/inmem"
	"github.com/Gurpartap/carecompanion/transport/langgraph"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errUnauthorized   = errors.New("invalid api key")
	errBodyTooLarge   = errors.New("request body too large")
)

func writeMappedError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeMappedError(w, invalidRequestError(message))
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, langgraph.ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody decodes exactly one JSON object. An empty body leaves dst
// untouched when optional is set.
func decodeJSONBody(r *http.Request, dst any, optional bool) error {
	if r.Body == nil {
		if optional {
			return nil
		}
		return invalidRequestError("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: request body exceeds %d bytes", errBodyTooLarge, maxBytesErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return invalidRequestError("request body is required")
		}
		return invalidRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidRequestError("request body must contain exactly one JSON object")
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errInvalidRequest), errors.Is(err, session.ErrThreadRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrThreadNotFound), errors.Is(err, inmem.ErrAssistantNotFound):
		return http.StatusNotFound
	case errors.Is(err, inmem.ErrThreadVersionConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func invalidRequestError(message string) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, message)
}
