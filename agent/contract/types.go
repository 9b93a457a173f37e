package contract

import "fmt"

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// ParameterSet carries named argument values for a single action call.
type ParameterSet map[string]any

// Action describes one invokable operation owned by a service adapter.
// Names are snake_case verbs such as "send_email": they double as the
// model-facing tool names, which only allow letters, digits, "_" and "-".
type Action struct {
	Name        string
	Description string
	Service     string
	Params      []Param

	// Format renders a success payload into one human sentence. Set at
	// registration time; failures are rendered by the dispatcher instead.
	Format func(payload map[string]any) string
}

// JSONSchema renders the parameter list as a JSON Schema object. The same
// document feeds the model's tool declaration and the dispatcher's validator.
func (a Action) JSONSchema() map[string]any {
	props := make(map[string]any, len(a.Params))
	required := make([]string, 0, len(a.Params))
	for _, p := range a.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Type == TypeString && p.Required {
			prop["minLength"] = 1
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

type FailureKind string

const (
	FailValidation   FailureKind = "validation-failure"
	FailAuth         FailureKind = "auth-error"
	FailTransport    FailureKind = "transport-error"
	FailQuota        FailureKind = "quota-error"
	FailInvalidInput FailureKind = "invalid-input"
)

// Failure carries a closed-set kind plus a human-readable, sanitized detail.
// Detail must never contain credentials or raw upstream error dumps.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// Result is the tagged outcome of one action execution: either a success
// payload or a failure, never both.
type Result struct {
	Action  string         `json:"action,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Failure *Failure       `json:"failure,omitempty"`
}

func Success(payload map[string]any) Result {
	if payload == nil {
		payload = map[string]any{}
	}
	return Result{Payload: payload}
}

func Fail(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}}
}

func (r Result) Ok() bool {
	return r.Failure == nil
}

// Resolution is the resolver's verdict on one user message. An empty Action
// is the valid "no action" outcome; Reply then holds the model's own
// conversational answer.
type Resolution struct {
	Action string       `json:"action,omitempty"`
	Params ParameterSet `json:"params,omitempty"`
	Reply  string       `json:"reply,omitempty"`
}

func (r Resolution) Matched() bool {
	return r.Action != ""
}
