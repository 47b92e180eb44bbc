package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	loggerpkg "github.com/minhyannv/toolcall/pkg/logger"
	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/openai/openai-go"
)

const DefaultMaxReadBytes int64 = 1024 * 1024

var (
	ErrNotFound          = errors.New("tool not found")
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrInvalidPermission = errors.New("invalid permission tag")
)

// Func is the uniform call contract every tool implements. The returned value
// must be JSON-serializable.
type Func func(ctx context.Context, args Args, report *progress.Reporter) (any, error)

// Descriptor declares a tool: its name, what it may touch, the parameters it
// accepts and the function that runs it.
type Descriptor struct {
	Name        string
	Description string
	Permission  string
	Params      []Param
	Func        Func
}

// Context carries shared settings into toolset constructors.
type Context struct {
	MaxReadBytes int64
	Verbose      bool
	AllowedDirs  []string
	Logger       loggerpkg.Logger
}

// Debugf logs a debug line when verbose logging is enabled.
func (c Context) Debugf(format string, args ...any) {
	loggerpkg.Debugf(c.Verbose, c.Logger, format, args...)
}

// Options configures a Registry.
type Options struct {
	// Allowed restricts RegisterAll to tools whose permission tag is a subset
	// of these classes. Empty means no restriction.
	Allowed  string
	Progress *progress.Reporter
	Logger   loggerpkg.Logger
	Verbose  bool
}

type entry struct {
	desc   Descriptor
	params []Param
}

// Registry holds registered tools and handles execution. It is built once at
// startup and only read afterwards.
type Registry struct {
	registry map[string]*entry
	order    []string
	params   []openai.ChatCompletionToolParam
	opts     Options
}

// ToolResult is the payload returned to the model for each tool call.
type ToolResult struct {
	Success bool   `json:"success"`
	Tool    string `json:"tool,omitempty"`
	Data    any    `json:"data,omitempty"`
	Err     string `json:"error,omitempty"`
}

// NewRegistry builds an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = loggerpkg.NopLogger{}
	}
	if opts.Progress == nil {
		opts.Progress = progress.Discard()
	}
	return &Registry{
		registry: make(map[string]*entry),
		opts:     opts,
	}
}

// ValidatePermission checks that tag only uses the r, w, x and n classes.
func ValidatePermission(tag string) error {
	for _, c := range tag {
		switch c {
		case 'r', 'w', 'x', 'n':
		default:
			return fmt.Errorf("%w %q: unexpected %q (allowed: r, w, x, n)", ErrInvalidPermission, tag, c)
		}
	}
	return nil
}

// Register adds a tool. It fails when the name is taken, the permission tag
// is invalid, or the parameter schema cannot be expressed.
func (t *Registry) Register(desc Descriptor) error {
	desc.Name = strings.TrimSpace(desc.Name)
	if desc.Name == "" {
		return errors.New("tool name is empty")
	}
	if desc.Func == nil {
		return fmt.Errorf("tool %s has no implementation", desc.Name)
	}
	if _, exists := t.registry[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	if err := ValidatePermission(desc.Permission); err != nil {
		return fmt.Errorf("tool %s: %w", desc.Name, err)
	}
	parameters, err := BuildParameters(desc.Params)
	if err != nil {
		return fmt.Errorf("tool %s: %w", desc.Name, err)
	}

	description := strings.TrimSpace(desc.Description)
	if description == "" {
		description = "Function " + desc.Name
	}
	t.registry[desc.Name] = &entry{
		desc:   desc,
		params: append([]Param(nil), desc.Params...),
	}
	t.order = append(t.order, desc.Name)
	t.params = append(t.params, openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        desc.Name,
			Description: openai.String(description),
			Parameters:  parameters,
		},
	})
	loggerpkg.Debug(t.opts.Verbose, t.opts.Logger, "tool registered", map[string]any{
		"name":       desc.Name,
		"permission": desc.Permission,
	})
	return nil
}

// Allows reports whether tag fits inside the registry's permission policy.
func (t *Registry) Allows(tag string) bool {
	if t.opts.Allowed == "" {
		return true
	}
	for _, c := range tag {
		if !strings.ContainsRune(t.opts.Allowed, c) {
			return false
		}
	}
	return true
}

// RegisterAll registers every descriptor the permission policy allows and
// skips the rest. It stops at the first registration error.
func (t *Registry) RegisterAll(descs ...Descriptor) error {
	for _, desc := range descs {
		if !t.Allows(desc.Permission) {
			loggerpkg.Debug(t.opts.Verbose, t.opts.Logger, "tool skipped by permission policy", map[string]any{
				"name":       desc.Name,
				"permission": desc.Permission,
				"allowed":    t.opts.Allowed,
			})
			continue
		}
		if err := t.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the descriptor registered under name.
func (t *Registry) Lookup(name string) (Descriptor, error) {
	e, ok := t.registry[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q (available: %s)", ErrNotFound, name, strings.Join(t.Names(), ", "))
	}
	return e.desc, nil
}

// AllPermissions maps every registered tool name to its permission tag.
func (t *Registry) AllPermissions() map[string]string {
	out := make(map[string]string, len(t.registry))
	for name, e := range t.registry {
		out[name] = e.desc.Permission
	}
	return out
}

// Names returns tool names in registration order.
func (t *Registry) Names() []string {
	return append([]string(nil), t.order...)
}

// SortedNames returns tool names alphabetically.
func (t *Registry) SortedNames() []string {
	names := t.Names()
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (t *Registry) Len() int {
	return len(t.order)
}

// Definitions returns the function-calling declarations sent with each request.
func (t *Registry) Definitions() []openai.ChatCompletionToolParam {
	return t.params
}

// Execute runs one tool call and returns the serialized ToolResult. Every
// failure mode becomes a success=false payload so the model can recover; the
// error return is reserved for payloads that cannot be encoded.
func (t *Registry) Execute(ctx context.Context, call openai.ChatCompletionMessageToolCall) (string, error) {
	name := call.Function.Name
	if ctx != nil {
		select {
		case <-ctx.Done():
			return marshalToolResponse(name, nil, ctx.Err())
		default:
		}
	} else {
		ctx = context.Background()
	}

	e, ok := t.registry[name]
	if !ok {
		_, err := t.Lookup(name)
		loggerpkg.Debug(t.opts.Verbose, t.opts.Logger, "unknown tool requested", map[string]any{"name": name})
		return marshalToolResponse(name, nil, err)
	}

	args, err := DecodeArgs(e.params, call.Function.Arguments)
	if err != nil {
		loggerpkg.Debug(t.opts.Verbose, t.opts.Logger, "invalid tool arguments", map[string]any{
			"name":  name,
			"error": err.Error(),
		})
		return marshalToolResponse(name, nil, fmt.Errorf("invalid arguments for %s: %w", name, err))
	}

	report := t.opts.Progress.ForPermission(e.desc.Permission)
	data, err := invoke(ctx, e.desc.Func, args, report)
	if err != nil {
		report.Error(fmt.Sprintf(" Tool error: %s - %v", name, err))
		return marshalToolResponse(name, data, fmt.Errorf("tool execution failed: %w", err))
	}
	return marshalToolResponse(name, data, nil)
}

// invoke calls fn and turns a panic into an error.
func invoke(ctx context.Context, fn Func, args Args, report *progress.Reporter) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args, report)
}

func marshalToolResponse(toolName string, data any, err error) (string, error) {
	resp := ToolResult{
		Success: err == nil,
		Tool:    toolName,
		Data:    data,
	}
	if err != nil {
		resp.Err = err.Error()
	}
	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return "", marshalErr
	}
	return string(payload), nil
}

// FailurePayload renders a success=false result without going through a
// registry, for callers that could not obtain one from Execute.
func FailurePayload(toolName string, err error) string {
	payload, marshalErr := marshalToolResponse(toolName, nil, err)
	if marshalErr != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return payload
}
