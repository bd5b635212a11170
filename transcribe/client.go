// Package transcribe talks to the speech-to-text service and exposes an
// upload proxy in front of it.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// FormField is the multipart field carrying the audio.
	FormField = "file"
	// DefaultBaseURL is where the local transcription service listens.
	DefaultBaseURL = "http://127.0.0.1:8001"
)

var (
	ErrDecodeResponse = errors.New("decode transcription response")
	ErrEmptyAudio     = errors.New("audio is empty")
)

// ServiceError is a failure reported by the transcription service in its
// response body.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "transcription failed: " + e.Message
}

// StatusError is a non-2xx answer from the transcription service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription service returned status %d: %s", e.StatusCode, e.Body)
}

// Response is the body returned by POST /transcribe.
type Response struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("new transcription client: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("new transcription client: base URL must include scheme and host")
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(trimmed, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		httpClient.SetTimeout(timeout)
	}
	return &Client{http: httpClient}, nil
}

// Transcribe uploads audio and returns the transcribed text.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio"
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader(FormField, filename, audio).
		Post("/transcribe")
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return "", &StatusError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	var decoded Response
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	if decoded.Error != "" {
		return "", &ServiceError{Message: decoded.Error}
	}
	return strings.TrimSpace(decoded.Text), nil
}
