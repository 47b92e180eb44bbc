package agent

import (
	"net/http"

	loggerpkg "github.com/minhyannv/toolcall/pkg/logger"
	"github.com/openai/openai-go/option"
)

// AgentOption configures optional runtime dependencies for AgentLoop.
type AgentOption func(*agentDeps)

type agentDeps struct {
	logger        loggerpkg.Logger
	onText        func(string)
	httpClient    *http.Client
	requestOpts   []option.RequestOption
	requestIDFunc func() string
	onRequest     func() func()
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) AgentOption {
	return func(d *agentDeps) {
		d.logger = l
	}
}

// WithAssistantTextHook receives assistant text that arrives together with
// tool calls, before the tools run.
func WithAssistantTextHook(fn func(string)) AgentOption {
	return func(d *agentDeps) {
		d.onText = fn
	}
}

// WithHTTPClient overrides the HTTP client used for completion requests.
func WithHTTPClient(c *http.Client) AgentOption {
	return func(d *agentDeps) {
		d.httpClient = c
	}
}

// WithRequestOptions appends raw openai-go request options to the client.
func WithRequestOptions(opts ...option.RequestOption) AgentOption {
	return func(d *agentDeps) {
		d.requestOpts = append(d.requestOpts, opts...)
	}
}

// WithRunID fixes the run identifier sent as X-Request-Id.
func WithRunID(id string) AgentOption {
	return func(d *agentDeps) {
		d.requestIDFunc = func() string { return id }
	}
}

// WithRequestHook calls fn before every completion request; the function it
// returns, if not nil, runs once the response or error arrives.
func WithRequestHook(fn func() func()) AgentOption {
	return func(d *agentDeps) {
		d.onRequest = fn
	}
}
