package langgraph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gurpartap/carecompanion/session"
)

func newTestClient(t *testing.T, handler http.Handler, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.HTTPClient = server.Client()
	client, err := New(server.URL+"/", opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewValidatesBaseURL(t *testing.T) {
	t.Parallel()

	for _, baseURL := range []string{"", "   ", "localhost:2024", "://bad"} {
		if _, err := New(baseURL, Options{}); err == nil {
			t.Fatalf("expected error for base URL %q", baseURL)
		}
	}
	client, err := New(" http://localhost:2024/ ", Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.BaseURL() != "http://localhost:2024" {
		t.Fatalf("base URL mismatch: got=%q", client.BaseURL())
	}
}

func TestClientCreateThreadAndWait(t *testing.T) {
	t.Parallel()

	const apiKey = "secret-key"
	var gotAPIKey, gotCreateBody string
	var gotRun RunRequest

	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get(apiKeyHeader)
		body, _ := io.ReadAll(r.Body)
		gotCreateBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"thread_id":"thread-9","status":"idle"}`)
	})
	mux.HandleFunc("POST /threads/{thread_id}/runs/wait", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("thread_id") != "thread-9" {
			t.Errorf("thread path mismatch: got=%q", r.PathValue("thread_id"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRun); err != nil {
			t.Errorf("decode run request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"messages":[{"type":"human","content":"hi"},{"type":"ai","content":"hello"}]}`)
	})
	mux.HandleFunc("GET /threads/{thread_id}/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"values":{"messages":[{"type":"human","content":"hi"},{"type":"ai","content":"hello"}]},"next":[]}`)
	})

	client := newTestClient(t, mux, Options{APIKey: apiKey})
	ctx := context.Background()

	threadID, err := client.CreateThread(ctx)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if threadID != "thread-9" {
		t.Fatalf("thread id mismatch: got=%q", threadID)
	}
	if gotAPIKey != apiKey {
		t.Fatalf("api key mismatch: got=%q want=%q", gotAPIKey, apiKey)
	}
	if gotCreateBody != "{}" {
		t.Fatalf("create body mismatch: got=%q", gotCreateBody)
	}

	values, err := client.Wait(ctx, session.TurnRequest{
		ThreadID: threadID,
		Input:    session.TurnInput{Messages: []session.Message{session.UserMessage("hi")}},
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(values.Messages) != 2 {
		t.Fatalf("values mismatch: %+v", values)
	}
	if gotRun.AssistantID != session.DefaultAssistantID {
		t.Fatalf("assistant id mismatch: got=%q", gotRun.AssistantID)
	}
	if len(gotRun.StreamMode) != 0 {
		t.Fatalf("wait must not request a stream mode: %v", gotRun.StreamMode)
	}
	if len(gotRun.Input.Messages) != 1 || gotRun.Input.Messages[0].Role != session.RoleUser {
		t.Fatalf("run input mismatch: %+v", gotRun.Input)
	}

	state, err := client.ThreadState(ctx, threadID)
	if err != nil {
		t.Fatalf("thread state: %v", err)
	}
	reply, ok := state.Values.LastReply()
	if !ok || session.Normalize(reply.Content) != "hello" {
		t.Fatalf("state reply mismatch: %+v", state.Values)
	}
}

func TestClientMapsErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /threads/{thread_id}/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Thread not found"}`)
	})
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})
	mux.HandleFunc("POST /threads/{thread_id}/runs/wait", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "bad upstream")
	})
	client := newTestClient(t, mux, Options{})
	ctx := context.Background()

	_, err := client.ThreadState(ctx, "missing")
	if !errors.Is(err, session.ErrTransport) || !errors.Is(err, session.ErrThreadNotFound) {
		t.Fatalf("expected transport thread-not-found error, got %v", err)
	}
	var requestError *RequestError
	if !errors.As(err, &requestError) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if requestError.StatusCode != http.StatusNotFound || requestError.Message != "Thread not found" {
		t.Fatalf("request error mismatch: %+v", requestError)
	}

	if _, err := client.CreateThread(ctx); !errors.Is(err, ErrDecodeResponse) {
		t.Fatalf("expected ErrDecodeResponse, got %v", err)
	}

	_, err = client.Wait(ctx, session.TurnRequest{ThreadID: "thread-1"})
	if !errors.As(err, &requestError) || requestError.Message != "bad upstream" {
		t.Fatalf("expected plain-text request error, got %v", err)
	}
	if errors.Is(err, session.ErrThreadNotFound) {
		t.Fatalf("502 must not read as thread not found: %v", err)
	}

	if _, err := client.Wait(ctx, session.TurnRequest{}); !errors.Is(err, session.ErrThreadRequired) {
		t.Fatalf("expected ErrThreadRequired, got %v", err)
	}
}

func TestClientWaitReportsRunFailure(t *testing.T) {
	t.Parallel()

	var stateReads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/{thread_id}/runs/wait", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"__error__":{"error":"GraphRecursionError","message":"recursion limit reached"}}`)
	})
	mux.HandleFunc("GET /threads/{thread_id}/state", func(w http.ResponseWriter, r *http.Request) {
		stateReads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"values":{"messages":[{"type":"human","content":"hi"},{"type":"ai","content":"old reply"},{"type":"human","content":"new question"}]}}`)
	})
	client := newTestClient(t, mux, Options{})

	_, err := client.Wait(context.Background(), session.TurnRequest{ThreadID: "thread-1"})
	if !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var runError *StreamError
	if !errors.As(err, &runError) {
		t.Fatalf("expected StreamError, got %T", err)
	}
	if runError.Kind != "GraphRecursionError" || runError.Message != "recursion limit reached" {
		t.Fatalf("run error mismatch: %+v", runError)
	}

	sessionClient, err := session.New(client, session.Options{})
	if err != nil {
		t.Fatalf("new session client: %v", err)
	}
	reply, err := sessionClient.SendMessage(context.Background(), "thread-1", "new question")
	if !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected failed run to fail the turn, got reply=%q err=%v", reply, err)
	}
	if reads := stateReads.Load(); reads != 0 {
		t.Fatalf("state must not be read after a failed run: reads=%d", reads)
	}
}

func TestClientStatelessStream(t *testing.T) {
	t.Parallel()

	var gotRun RunRequest
	var gotAccept string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs/stream", func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotRun); err != nil {
			t.Errorf("decode run request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: metadata\ndata: {\"run_id\":\"run-1\"}\n\n")
		_, _ = io.WriteString(w, "event: values\ndata: {\"messages\":[{\"type\":\"human\",\"content\":\"q\"}]}\n\n")
		_, _ = io.WriteString(w, "event: values\ndata: {\"messages\":[{\"type\":\"human\",\"content\":\"q\"},{\"type\":\"ai\",\"content\":\"a\"}]}\n\n")
	})
	client := newTestClient(t, mux, Options{})

	stream, err := client.Stream(context.Background(), session.TurnRequest{
		AssistantID: "agent",
		Input:       session.TurnInput{Messages: []session.Message{session.UserMessage("q")}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	reduced, err := session.ReduceStream(stream)
	if err != nil {
		t.Fatalf("reduce stream: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close stream: %v", err)
	}

	if reduced.Text != "a" || reduced.Events != 3 {
		t.Fatalf("reduction mismatch: %+v", reduced)
	}
	if gotAccept != "text/event-stream" {
		t.Fatalf("accept header mismatch: got=%q", gotAccept)
	}
	if len(gotRun.StreamMode) != 1 || gotRun.StreamMode[0] != "values" {
		t.Fatalf("stream mode mismatch: %v", gotRun.StreamMode)
	}
}

func TestClientStreamErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/{thread_id}/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("thread_id") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Thread not found"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: error\ndata: {\"error\":\"GraphRecursionError\",\"message\":\"limit reached\"}\n\n")
	})
	client := newTestClient(t, mux, Options{})

	_, err := client.Stream(context.Background(), session.TurnRequest{ThreadID: "gone"})
	if !errors.Is(err, session.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}

	stream, err := client.Stream(context.Background(), session.TurnRequest{ThreadID: "thread-1"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	_, err = stream.Next()
	var streamError *StreamError
	if !errors.As(err, &streamError) || !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected transport-wrapped StreamError, got %v", err)
	}
	if streamError.Kind != "GraphRecursionError" || streamError.Message != "limit reached" {
		t.Fatalf("stream error mismatch: %+v", streamError)
	}
}

func TestClientHonoursContextDeadline(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.CreateThread(ctx)
	if !errors.Is(err, session.ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected transport error wrapping deadline, got %v", err)
	}
}

func TestClientSearchAssistantsAndHealth(t *testing.T) {
	t.Parallel()

	var gotSearch SearchAssistantsRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assistants/search", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotSearch); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		_, _ = io.WriteString(w, `[{"assistant_id":"a-1","graph_id":"agent","name":"Companion"}]`)
	})
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	client := newTestClient(t, mux, Options{})

	assistants, err := client.SearchAssistants(context.Background(), SearchAssistantsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("search assistants: %v", err)
	}
	if len(assistants) != 1 || assistants[0].AssistantID != "a-1" || assistants[0].GraphID != "agent" {
		t.Fatalf("assistants mismatch: %+v", assistants)
	}
	if gotSearch.Limit != 5 {
		t.Fatalf("search limit mismatch: got=%d", gotSearch.Limit)
	}
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestMapRequestError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "detail", body: `{"detail":"Thread not found"}`, want: "Thread not found"},
		{name: "message", body: `{"error":"ValueError","message":"bad input"}`, want: "bad input"},
		{name: "plain text", body: "bad upstream", want: "bad upstream"},
		{name: "empty", body: "", want: "Bad Gateway"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := mapRequestError(http.StatusBadGateway, []byte(tc.body))
			var requestError *RequestError
			if !errors.As(err, &requestError) {
				t.Fatalf("expected RequestError, got %T", err)
			}
			if requestError.Message != tc.want {
				t.Fatalf("message mismatch: got=%q want=%q", requestError.Message, tc.want)
			}
		})
	}
}
