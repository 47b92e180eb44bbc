package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/openai/openai-go"
)

// Parameter types understood by the schema generator.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// ErrUnsupportedType is returned at registration for parameter types the
// endpoint schema cannot carry.
var ErrUnsupportedType = errors.New("unsupported parameter type")

// Param declares one tool argument.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
	// Default is used when an optional argument is omitted. nil means the
	// argument is simply absent.
	Default any
}

func validateParams(params []Param) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("parameter name is empty")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		default:
			return fmt.Errorf("parameter %q: %w %q", p.Name, ErrUnsupportedType, p.Type)
		}
		if p.Default != nil {
			if _, err := coerce(p, p.Default); err != nil {
				return fmt.Errorf("parameter %q: default: %w", p.Name, err)
			}
		}
	}
	return nil
}

// BuildParameters produces the JSON schema object declared for a tool.
func BuildParameters(params []Param) (openai.FunctionParameters, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if desc := strings.TrimSpace(p.Description); desc != "" {
			prop["description"] = desc
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return openai.FunctionParameters{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, nil
}

// Args holds decoded, validated tool arguments.
type Args map[string]any

// Has reports whether name was provided or defaulted.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns the string argument or "".
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the integer argument or 0.
func (a Args) Int(name string) int {
	n, _ := a[name].(int64)
	return int(n)
}

// Float returns the number argument or 0.
func (a Args) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns the boolean argument or false.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// DecodeArgs parses the model's JSON arguments and checks them against the
// declared parameters. Optional arguments that are absent or null take their
// default, if any.
func DecodeArgs(params []Param, raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, errors.New("arguments must be a JSON object")
	}

	byName := make(map[string]Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}

	var unknown []string
	for key := range obj {
		if _, ok := byName[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unexpected argument(s): %s", strings.Join(unknown, ", "))
	}

	args := make(Args, len(params))
	for _, p := range params {
		value, present := obj[p.Name]
		if !present || value == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			if p.Default != nil {
				v, err := coerce(p, p.Default)
				if err != nil {
					return nil, err
				}
				args[p.Name] = v
			}
			continue
		}
		v, err := coerce(p, value)
		if err != nil {
			return nil, err
		}
		args[p.Name] = v
	}
	return args, nil
}

// coerce converts a decoded JSON value (or a Go default) into the canonical
// Go type for p: string, int64, float64 or bool.
func coerce(p Param, value any) (any, error) {
	switch p.Type {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case TypeInteger:
		if n, ok, fits := toInt64(value); ok {
			if !fits {
				return nil, fmt.Errorf("argument %q must be an integer, got %v", p.Name, value)
			}
			return n, nil
		}
	case TypeNumber:
		if f, ok := toFloat(value); ok {
			return f, nil
		}
	default:
		return nil, fmt.Errorf("parameter %q: %w %q", p.Name, ErrUnsupportedType, p.Type)
	}
	return nil, fmt.Errorf("argument %q must be of type %s, got %s", p.Name, p.Type, jsonKind(value))
}

// toInt64 converts a decoded number to int64. ok reports whether value is a
// number at all; fits reports whether it is integral and within the range
// of both int64 and int.
func toInt64(value any) (n int64, ok, fits bool) {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true, fitsInt(i)
		}
		// Plain digits that failed Int64 are out of range.
		if !strings.ContainsAny(v.String(), ".eE") {
			return 0, true, false
		}
	case int:
		return int64(v), true, true
	case int64:
		return v, true, fitsInt(v)
	case int32:
		return int64(v), true, true
	}
	f, isNum := toFloat(value)
	if !isNum {
		return 0, false, false
	}
	// 2^63 is exactly representable; anything at or beyond it overflows.
	if f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.Exp2(63) || f < -math.Exp2(63) {
		return 0, true, false
	}
	i := int64(f)
	return i, true, fitsInt(i)
}

func fitsInt(n int64) bool {
	return int64(int(n)) == n
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

func jsonKind(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
