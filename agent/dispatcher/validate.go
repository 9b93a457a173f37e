package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	contractx "github.com/attachehq/attache/agent/contract"
)

// validator compiles and caches one JSON Schema per action. The compiled
// document is the same one the model received as the tool declaration, so
// the gate enforces exactly what was declared.
type validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func newValidator() *validator {
	return &validator{cache: make(map[string]*jsonschema.Schema)}
}

// check validates params against the action schema. It returns either the
// fully-typed parameter set ready for the adapter, or the list of human
// violations. The error return is for broken schemas, not bad input.
func (v *validator) check(a contractx.Action, params contractx.ParameterSet) (contractx.ParameterSet, []string, error) {
	if params == nil {
		params = contractx.ParameterSet{}
	}
	normalized := normalize(a, params)

	schema, err := v.schemaFor(a)
	if err != nil {
		return nil, nil, err
	}
	doc, err := toJSONValue(normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize parameters: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		violations := flatViolations(a, normalized)
		if len(violations) == 0 {
			var verr *jsonschema.ValidationError
			if errors.As(err, &verr) {
				violations = collectViolations(verr)
			} else {
				violations = []string{"parameters do not match the action schema"}
			}
		}
		return nil, violations, nil
	}
	return typed(a, normalized), nil, nil
}

func (v *validator) schemaFor(a contractx.Action) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if s, ok := v.cache[a.Name]; ok {
		v.mu.RUnlock()
		return s, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.cache[a.Name]; ok {
		return s, nil
	}

	raw, err := json.Marshal(a.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", a.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", a.Name, err)
	}

	url := fmt.Sprintf("attache://actions/%s", a.Name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", a.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", a.Name, err)
	}
	v.cache[a.Name] = compiled
	return compiled, nil
}

// normalize repairs the shapes language models commonly emit (numbers and
// booleans quoted as strings) before validation sees them.
func normalize(a contractx.Action, params contractx.ParameterSet) contractx.ParameterSet {
	out := make(contractx.ParameterSet, len(params))
	for k, val := range params {
		out[k] = val
	}
	for _, p := range a.Params {
		raw, ok := out[p.Name]
		if !ok {
			continue
		}
		switch p.Type {
		case contractx.TypeInteger:
			if s, isStr := raw.(string); isStr {
				if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
					out[p.Name] = float64(n)
				}
			}
		case contractx.TypeBoolean:
			if s, isStr := raw.(string); isStr {
				if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
					out[p.Name] = b
				}
			}
		case contractx.TypeString:
			if s, isStr := raw.(string); isStr {
				out[p.Name] = strings.TrimSpace(s)
			}
		}
	}
	return out
}

// typed converts validated values into the exact Go types adapters expect:
// int for integers, bool for booleans, trimmed string for strings.
func typed(a contractx.Action, params contractx.ParameterSet) contractx.ParameterSet {
	out := make(contractx.ParameterSet, len(params))
	for k, val := range params {
		out[k] = val
	}
	for _, p := range a.Params {
		if !out.Has(p.Name) {
			continue
		}
		switch p.Type {
		case contractx.TypeInteger:
			out[p.Name] = out.Int(p.Name, 0)
		case contractx.TypeBoolean:
			out[p.Name] = out.Bool(p.Name, false)
		case contractx.TypeString:
			out[p.Name] = out.String(p.Name)
		}
	}
	return out
}

// flatViolations produces chat-quality messages for the common failures.
// The schema verdict decides whether validation passed; this list only
// words the answer.
func flatViolations(a contractx.Action, params contractx.ParameterSet) []string {
	var out []string
	declared := make(map[string]contractx.Param, len(a.Params))
	for _, p := range a.Params {
		declared[p.Name] = p
		raw, ok := params[p.Name]
		if !ok {
			if p.Required {
				out = append(out, fmt.Sprintf("missing required parameter %q", p.Name))
			}
			continue
		}
		if !matchesType(p.Type, raw) {
			out = append(out, fmt.Sprintf("parameter %q must be %s", p.Name, typeWords(p.Type)))
			continue
		}
		if p.Required && p.Type == contractx.TypeString {
			if s, _ := raw.(string); strings.TrimSpace(s) == "" {
				out = append(out, fmt.Sprintf("parameter %q must not be empty", p.Name))
			}
		}
	}

	var unknown []string
	for name := range params {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, fmt.Sprintf("unknown parameter %q", name))
		}
	}
	sort.Strings(unknown)
	return append(out, unknown...)
}

func matchesType(t contractx.ParamType, v any) bool {
	switch t {
	case contractx.TypeString:
		_, ok := v.(string)
		return ok
	case contractx.TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case json.Number:
			_, err := strconv.ParseInt(string(n), 10, 64)
			return err == nil
		}
		return false
	case contractx.TypeBoolean:
		_, ok := v.(bool)
		return ok
	}
	return true
}

func typeWords(t contractx.ParamType) string {
	switch t {
	case contractx.TypeInteger:
		return "a whole number"
	case contractx.TypeBoolean:
		return "true or false"
	default:
		return "text"
	}
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, the representation the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and gathers leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
