// Package agent drives the request/tool-dispatch loop against an
// OpenAI-compatible chat completions endpoint.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	configpkg "github.com/minhyannv/toolcall/pkg/config"
	loggerpkg "github.com/minhyannv/toolcall/pkg/logger"
	"github.com/minhyannv/toolcall/pkg/prompt"
	"github.com/minhyannv/toolcall/pkg/tools"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Usage is the token accounting summed over every request of a run.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

func (u *Usage) add(c openai.CompletionUsage) {
	u.PromptTokens += c.PromptTokens
	u.CompletionTokens += c.CompletionTokens
	u.TotalTokens += c.TotalTokens
}

// Result is the outcome of one prompt.
type Result struct {
	Content   string
	Usage     Usage
	Turns     int
	ToolCalls int
	// Messages is the conversation length including the final answer.
	Messages int
}

// AgentLoop holds agent runtime state.
type AgentLoop struct {
	config       configpkg.Config
	client       openai.Client
	tools        *tools.Registry
	SystemPrompt string
	RunID        string
	history      []openai.ChatCompletionMessageParamUnion

	logger    loggerpkg.Logger
	onText    func(string)
	onRequest func() func()
	verbose   bool
}

// New validates cfg and prepares a loop that offers the tools in registry.
// A nil registry means no tools are declared.
func New(cfg configpkg.Config, registry *tools.Registry, opts ...AgentOption) (*AgentLoop, error) {
	cfg = configpkg.Normalize(cfg)
	deps := agentDeps{logger: loggerpkg.NopLogger{}, requestIDFunc: uuid.NewString}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.logger == nil {
		deps.logger = loggerpkg.NopLogger{}
	}
	if err := configpkg.Validate(cfg); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = tools.NewRegistry(tools.Options{})
	}

	systemPrompt := prompt.BuildSystemPrompt(registry.AllPermissions(), cfg.SystemPrompt)
	runID := deps.requestIDFunc()
	loggerpkg.Debug(cfg.Verbose, deps.logger, "agent_loop init", map[string]any{
		"run_id":      runID,
		"max_turns":   cfg.MaxTurns,
		"model":       cfg.Model,
		"base_url":    cfg.BaseURL,
		"tools":       registry.Len(),
		"temperature": cfg.Temperature,
		"prompt_size": len(systemPrompt),
	})

	a := &AgentLoop{
		config:       cfg,
		client:       newOpenAIClient(cfg, runID, deps),
		tools:        registry,
		SystemPrompt: systemPrompt,
		RunID:        runID,
		logger:       deps.logger,
		onText:       deps.onText,
		onRequest:    deps.onRequest,
		verbose:      cfg.Verbose,
	}
	a.Reset()
	return a, nil
}

func newOpenAIClient(cfg configpkg.Config, runID string, deps agentDeps) openai.Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHeader("X-Request-Id", runID),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if deps.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(deps.httpClient))
	}
	opts = append(opts, deps.requestOpts...)
	return openai.NewClient(opts...)
}

// runOnce performs one model completion request.
func (a *AgentLoop) runOnce(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletionMessage, openai.CompletionUsage, error) {
	var finished func()
	if a.onRequest != nil {
		finished = a.onRequest()
	}
	completion, err := a.client.Chat.Completions.New(ctx, params)
	if finished != nil {
		finished()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return openai.ChatCompletionMessage{}, openai.CompletionUsage{}, fmt.Errorf("completion cancelled: %w", ctxErr)
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return openai.ChatCompletionMessage{}, openai.CompletionUsage{}, &TransportError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return openai.ChatCompletionMessage{}, openai.CompletionUsage{}, &TransportError{Err: err}
	}
	if completion == nil || len(completion.Choices) == 0 {
		return openai.ChatCompletionMessage{}, openai.CompletionUsage{}, &TransportError{Err: errors.New("empty completion choices")}
	}
	return completion.Choices[0].Message, completion.Usage, nil
}

// runIteration executes iterative model/tool turns for one user interaction
// and returns the extended message list ending with the final answer.
func (a *AgentLoop) runIteration(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) ([]openai.ChatCompletionMessageParamUnion, Result, error) {
	current := append([]openai.ChatCompletionMessageParamUnion{}, messages...)
	var res Result
	maxTurns := a.config.MaxTurns

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, res, fmt.Errorf("completion cancelled: %w", err)
		}
		a.debugf("[verbose] iteration: %d/%d", turn+1, maxTurns)
		message, usage, err := a.runOnce(ctx, a.newChatParams(current))
		if err != nil {
			return nil, res, err
		}
		res.Turns++
		res.Usage.add(usage)

		if len(message.ToolCalls) == 0 {
			current = append(current, message.ToParam())
			res.Content = message.Content
			res.Messages = len(current)
			return current, res, nil
		}

		if text := strings.TrimSpace(message.Content); text != "" && a.onText != nil {
			a.onText(text)
		}
		// Persist the assistant tool-call turn before appending tool responses.
		current = append(current, message.ToParam())
		a.debugf("[verbose] iteration: assistant requested %d tool call(s)", len(message.ToolCalls))
		current = a.appendToolResponses(ctx, current, message.ToolCalls)
		res.ToolCalls += len(message.ToolCalls)
	}

	loggerpkg.Warn(a.logger, "turn limit reached", map[string]any{
		"run_id":     a.RunID,
		"max_turns":  maxTurns,
		"tool_calls": res.ToolCalls,
	})
	return nil, res, ErrLoopLimit
}

// Run answers prompt on a fresh conversation. History kept for Chat is left
// untouched.
func (a *AgentLoop) Run(ctx context.Context, userInput string) (Result, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return Result{}, ErrEmptyPrompt
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(a.SystemPrompt),
		openai.UserMessage(userInput),
	}
	_, res, err := a.runIteration(ctx, messages)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Chat processes one user input as part of an ongoing conversation. On
// failure the history is rolled back to what it was before the call.
func (a *AgentLoop) Chat(ctx context.Context, userInput string) (Result, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return Result{}, ErrEmptyPrompt
	}
	messages := append(append([]openai.ChatCompletionMessageParamUnion{}, a.history...), openai.UserMessage(userInput))
	updated, res, err := a.runIteration(ctx, messages)
	if err != nil {
		return Result{}, err
	}
	a.history = updated
	return res, nil
}

// Reset clears conversation history and keeps only the system prompt.
func (a *AgentLoop) Reset() {
	a.history = []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(a.SystemPrompt)}
}

// HistoryLen returns the number of messages kept for Chat.
func (a *AgentLoop) HistoryLen() int {
	return len(a.history)
}

func (a *AgentLoop) debugf(format string, args ...any) {
	loggerpkg.Debugf(a.verbose, a.logger, format, args...)
}

func (a *AgentLoop) newChatParams(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.config.Model),
		Messages:    messages,
		Temperature: openai.Float(a.config.Temperature),
	}
	if a.tools.Len() > 0 {
		params.Tools = a.tools.Definitions()
	}
	return params
}

func (a *AgentLoop) appendToolResponses(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
	toolCalls []openai.ChatCompletionMessageToolCall,
) []openai.ChatCompletionMessageParamUnion {
	updated := messages
	for _, call := range toolCalls {
		loggerpkg.Debug(a.verbose, a.logger, "tool call", map[string]any{
			"run_id":    a.RunID,
			"id":        call.ID,
			"name":      call.Function.Name,
			"arguments": call.Function.Arguments,
		})
		output, err := a.tools.Execute(ctx, call)
		if err != nil {
			output = tools.FailurePayload(call.Function.Name, err)
		}
		updated = append(updated, openai.ToolMessage(output, call.ID))
	}
	return updated
}
