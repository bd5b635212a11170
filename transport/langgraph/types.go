package langgraph

import "github.com/Gurpartap/carecompanion/session"

// Thread is the body returned by POST /threads.
type Thread struct {
	ThreadID  session.ThreadID `json:"thread_id"`
	CreatedAt string           `json:"created_at,omitempty"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Status    string           `json:"status,omitempty"`
}

// RunInput is the graph input of a run.
type RunInput struct {
	Messages []session.Message `json:"messages"`
}

// RunRequest is the body of the runs/wait and runs/stream endpoints.
type RunRequest struct {
	AssistantID string   `json:"assistant_id"`
	Input       RunInput `json:"input"`
	StreamMode  []string `json:"stream_mode,omitempty"`
}

// RunWaitResponse is the body returned by runs/wait: the final values, or
// the run failure under __error__ with a 200 status.
type RunWaitResponse struct {
	session.Values
	Error *StreamError `json:"__error__,omitempty"`
}

// ThreadStateResponse is the body returned by GET /threads/{id}/state.
type ThreadStateResponse struct {
	Values    session.Values `json:"values"`
	Next      []string       `json:"next"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// SearchAssistantsRequest is the body of POST /assistants/search.
type SearchAssistantsRequest struct {
	GraphID string `json:"graph_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// ErrorResponse is the error body the agent service returns.
type ErrorResponse struct {
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func newRunRequest(request session.TurnRequest) RunRequest {
	assistantID := request.AssistantID
	if assistantID == "" {
		assistantID = session.DefaultAssistantID
	}
	messages := request.Input.Messages
	if messages == nil {
		messages = []session.Message{}
	}
	out := RunRequest{
		AssistantID: assistantID,
		Input:       RunInput{Messages: messages},
	}
	if request.StreamMode != "" {
		out.StreamMode = []string{string(request.StreamMode)}
	}
	return out
}
