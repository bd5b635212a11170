package langgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrBaseURLRequired = errors.New("base URL is required")
	ErrDecodeResponse  = errors.New("decode response")
	ErrReadResponse    = errors.New("read response")
)

// RequestError is a non-2xx answer from the agent service.
type RequestError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// StreamError is an error event emitted inside a run stream.
type StreamError struct {
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string {
	switch {
	case e.Kind != "" && e.Message != "":
		return fmt.Sprintf("run failed: %s: %s", e.Kind, e.Message)
	case e.Message != "":
		return "run failed: " + e.Message
	case e.Kind != "":
		return "run failed: " + e.Kind
	default:
		return "run failed"
	}
}

func mapRequestError(statusCode int, body []byte) error {
	requestError := &RequestError{
		StatusCode: statusCode,
		Body:       append([]byte(nil), body...),
	}

	var parsed ErrorResponse
	if decodeAPIError(body, &parsed) {
		switch {
		case parsed.Detail != "":
			requestError.Message = parsed.Detail
		case parsed.Message != "":
			requestError.Message = parsed.Message
		default:
			requestError.Message = parsed.Error
		}
	} else {
		requestError.Message = strings.TrimSpace(string(body))
	}
	if requestError.Message == "" {
		requestError.Message = http.StatusText(statusCode)
	}
	return requestError
}

func decodeAPIError(body []byte, out *ErrorResponse) bool {
	if len(body) == 0 || out == nil {
		return false
	}
	*out = ErrorResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		return false
	}
	return strings.TrimSpace(out.Detail+out.Message+out.Error) != ""
}
