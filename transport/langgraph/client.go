package langgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Gurpartap/carecompanion/session"
)

const apiKeyHeader = "X-Api-Key"

// Options configures a Client.
type Options struct {
	APIKey string
	// Timeout bounds each request including the read of a stream body.
	// Zero means no client-side timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to a LangGraph-style agent service over HTTP. It satisfies
// session.Transport and never retries.
type Client struct {
	http    *resty.Client
	baseURL string
}

var _ session.Transport = (*Client)(nil)

func New(baseURL string, opts Options) (*Client, error) {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		return nil, fmt.Errorf("new client: %w", ErrBaseURLRequired)
	}

	parsed, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, fmt.Errorf("new client: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("new client: base URL must include scheme and host")
	}
	trimmedBaseURL = strings.TrimRight(trimmedBaseURL, "/")

	var httpClient *resty.Client
	if opts.HTTPClient != nil {
		httpClient = resty.NewWithClient(opts.HTTPClient)
	} else {
		httpClient = resty.New()
	}
	httpClient.
		SetBaseURL(trimmedBaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	if userAgent := strings.TrimSpace(opts.UserAgent); userAgent != "" {
		httpClient.SetHeader("User-Agent", userAgent)
	}
	if apiKey := strings.TrimSpace(opts.APIKey); apiKey != "" {
		httpClient.SetHeader(apiKeyHeader, apiKey)
	}

	return &Client{http: httpClient, baseURL: trimmedBaseURL}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes GET /ok.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/ok", nil); err != nil {
		return session.NewTransportError("health", err)
	}
	return nil
}

func (c *Client) CreateThread(ctx context.Context) (session.ThreadID, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return session.NoThread, session.NewTransportError("create thread", err)
	}
	if strings.TrimSpace(string(thread.ThreadID)) == "" {
		return session.NoThread, session.NewTransportError("create thread", fmt.Errorf("%w: thread_id is missing", ErrDecodeResponse))
	}
	return thread.ThreadID, nil
}

func (c *Client) Wait(ctx context.Context, request session.TurnRequest) (session.Values, error) {
	path, err := threadPath(request.ThreadID)
	if err != nil {
		return session.Values{}, session.NewTransportError("wait", err)
	}

	var response RunWaitResponse
	if err := c.doJSON(ctx, http.MethodPost, path+"/runs/wait", newRunRequest(request), &response); err != nil {
		return session.Values{}, session.NewTransportError("wait", threadNotFound(err))
	}
	if response.Error != nil {
		return session.Values{}, session.NewTransportError("wait", response.Error)
	}
	return response.Values, nil
}

func (c *Client) ThreadState(ctx context.Context, threadID session.ThreadID) (session.ThreadState, error) {
	path, err := threadPath(threadID)
	if err != nil {
		return session.ThreadState{}, session.NewTransportError("thread state", err)
	}

	var response ThreadStateResponse
	if err := c.doJSON(ctx, http.MethodGet, path+"/state", nil, &response); err != nil {
		return session.ThreadState{}, session.NewTransportError("thread state", threadNotFound(err))
	}
	return session.ThreadState{ThreadID: threadID, Values: response.Values}, nil
}

// Stream opens a run stream. A NoThread request targets the stateless
// /runs/stream endpoint.
func (c *Client) Stream(ctx context.Context, request session.TurnRequest) (session.EventStream, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	path := "/runs/stream"
	if request.ThreadID != session.NoThread {
		threadScoped, err := threadPath(request.ThreadID)
		if err != nil {
			return nil, session.NewTransportError("stream", err)
		}
		path = threadScoped + "/runs/stream"
	}
	if request.StreamMode == "" {
		request.StreamMode = session.StreamModeValues
	}

	response, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetBody(newRunRequest(request)).
		Post(path)
	if err != nil {
		return nil, session.NewTransportError("stream", fmt.Errorf("do request: %w", err))
	}

	body := response.RawBody()
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		defer body.Close()
		raw, readErr := io.ReadAll(body)
		if readErr != nil {
			return nil, session.NewTransportError("stream", fmt.Errorf("%w: %w", ErrReadResponse, readErr))
		}
		return nil, session.NewTransportError("stream", threadNotFound(mapRequestError(response.StatusCode(), raw)))
	}
	return &eventStream{body: body, reader: NewReader(body)}, nil
}

// SearchAssistants lists the assistants the service exposes.
func (c *Client) SearchAssistants(ctx context.Context, request SearchAssistantsRequest) ([]session.Assistant, error) {
	var assistants []session.Assistant
	if err := c.doJSON(ctx, http.MethodPost, "/assistants/search", request, &assistants); err != nil {
		return nil, session.NewTransportError("search assistants", err)
	}
	return assistants, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	raw, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	request := c.http.R().SetContext(ctx)
	if payload != nil {
		request.SetBody(payload)
	}
	response, err := request.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	body := response.Body()
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		return nil, mapRequestError(response.StatusCode(), body)
	}
	return body, nil
}

func threadPath(threadID session.ThreadID) (string, error) {
	trimmed := strings.TrimSpace(string(threadID))
	if trimmed == "" {
		return "", session.ErrThreadRequired
	}
	return "/threads/" + url.PathEscape(trimmed), nil
}

func threadNotFound(err error) error {
	var requestError *RequestError
	if errors.As(err, &requestError) && requestError.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", session.ErrThreadNotFound, err)
	}
	return err
}

// eventStream reads frames from an open response body. Error frames end the
// stream with a *StreamError.
type eventStream struct {
	body      io.ReadCloser
	reader    *Reader
	closeOnce sync.Once
	closeErr  error
}

func (s *eventStream) Next() (session.StreamEvent, error) {
	event, err := s.reader.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return session.StreamEvent{}, io.EOF
		}
		return session.StreamEvent{}, session.NewTransportError("stream", err)
	}
	if event.Event == session.EventError {
		streamErr := &StreamError{}
		if len(event.Data) > 0 {
			if decodeErr := json.Unmarshal(event.Data, streamErr); decodeErr != nil {
				streamErr.Message = string(event.Data)
			}
		}
		return session.StreamEvent{}, session.NewTransportError("stream", streamErr)
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
