// Package mockendpoint is a scripted chat-completions endpoint for tests.
package mockendpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// ToolCall is a tool invocation the scripted model requests.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Reply is one scripted response.
type Reply struct {
	// Status overrides the HTTP status; zero means 200.
	Status int
	// Body, when set, is written verbatim instead of a generated completion.
	Body      string
	Text      string
	ToolCalls []ToolCall
	// Repeat keeps serving this reply once the script reaches it.
	Repeat bool
}

// Request is what the endpoint received.
type Request struct {
	Header   http.Header
	Model    string           `json:"model"`
	Messages []map[string]any `json:"messages"`
	Tools    []map[string]any `json:"tools"`
}

// Server is an httptest server that answers chat completion requests from a
// fixed script.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	script   []Reply
	next     int
	requests []Request
}

// New starts a server that serves replies in order.
func New(replies ...Reply) *Server {
	s := &Server{script: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the value to use for BASE_URL.
func (s *Server) BaseURL() string {
	return s.URL + "/v1/"
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns the number of requests received.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	req := Request{Header: r.Header.Clone()}
	_ = json.Unmarshal(raw, &req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	reply, ok := s.pick()
	turn := len(s.requests)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"script exhausted","type":"server_error"}}`)
		return
	}
	if reply.Status != 0 {
		w.WriteHeader(reply.Status)
	}
	if reply.Body != "" {
		_, _ = io.WriteString(w, reply.Body)
		return
	}
	_ = json.NewEncoder(w).Encode(completion(turn, req.Model, reply))
}

func (s *Server) pick() (Reply, bool) {
	if s.next < len(s.script) {
		reply := s.script[s.next]
		if !reply.Repeat {
			s.next++
		}
		return reply, true
	}
	return Reply{}, false
}

func completion(turn int, model string, reply Reply) map[string]any {
	message := map[string]any{"role": "assistant", "content": reply.Text}
	finish := "stop"
	if len(reply.ToolCalls) > 0 {
		calls := make([]map[string]any, 0, len(reply.ToolCalls))
		for i, c := range reply.ToolCalls {
			id := c.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%d", turn, i)
			}
			calls = append(calls, map[string]any{
				"id":   id,
				"type": "function",
				"function": map[string]any{
					"name":      c.Name,
					"arguments": c.Arguments,
				},
			})
		}
		message["tool_calls"] = calls
		if reply.Text == "" {
			message["content"] = nil
		}
		finish = "tool_calls"
	}
	return map[string]any{
		"id":      fmt.Sprintf("chatcmpl-%d", turn),
		"object":  "chat.completion",
		"created": 1700000000 + turn,
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       message,
			"finish_reason": finish,
			"logprobs":      nil,
		}},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
}
