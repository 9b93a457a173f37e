package contract

import (
	"encoding/json"
	"testing"
)

func TestParameterSetString(t *testing.T) {
	t.Parallel()

	p := ParameterSet{"to": "  sam@example.com ", "count": 5}

	if got := p.String("to"); got != "sam@example.com" {
		t.Fatalf("String(to) = %q, want trimmed address", got)
	}
	if got := p.String("missing"); got != "" {
		t.Fatalf("String(missing) = %q, want empty", got)
	}
	if got := p.String("count"); got != "" {
		t.Fatalf("String(count) = %q, want empty for non-string", got)
	}
	if got := p.StringOr("missing", "inbox"); got != "inbox" {
		t.Fatalf("StringOr(missing) = %q, want fallback", got)
	}
	if got := p.StringOr("to", "inbox"); got != "sam@example.com" {
		t.Fatalf("StringOr(to) = %q, want stored value", got)
	}
}

func TestParameterSetIntCoercions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"int", 7, 7},
		{"int64", int64(8), 8},
		{"float64", float64(9), 9},
		{"json number", json.Number("10"), 10},
		{"numeric string", " 11 ", 11},
		{"garbage string", "lots", 5},
		{"absent", nil, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := ParameterSet{}
			if tt.value != nil {
				p["count"] = tt.value
			}
			if got := p.Int("count", 5); got != tt.want {
				t.Fatalf("Int(count) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParameterSetBool(t *testing.T) {
	t.Parallel()

	p := ParameterSet{"a": true, "b": "false", "c": "nope"}

	if !p.Bool("a", false) {
		t.Fatal("Bool(a) = false, want true")
	}
	if p.Bool("b", true) {
		t.Fatal("Bool(b) = true, want parsed false")
	}
	if !p.Bool("c", true) {
		t.Fatal("Bool(c) = false, want fallback true")
	}
}

func TestActionJSONSchema(t *testing.T) {
	t.Parallel()

	action := Action{
		Name: "send_email",
		Params: []Param{
			{Name: "to", Type: TypeString, Required: true},
			{Name: "count", Type: TypeInteger},
		},
	}

	schema := action.JSONSchema()

	if schema["type"] != "object" {
		t.Fatalf("schema type = %v, want object", schema["type"])
	}
	if schema["additionalProperties"] != false {
		t.Fatal("schema must close additionalProperties")
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "to" {
		t.Fatalf("required = %v, want [to]", schema["required"])
	}

	props := schema["properties"].(map[string]any)
	to := props["to"].(map[string]any)
	if to["minLength"] != 1 {
		t.Fatalf("required string should get minLength 1, got %v", to["minLength"])
	}
	count := props["count"].(map[string]any)
	if _, ok := count["minLength"]; ok {
		t.Fatal("integer param must not carry minLength")
	}
}

func TestActionJSONSchemaNoRequired(t *testing.T) {
	t.Parallel()

	action := Action{Name: "get_unread_count"}

	if _, ok := action.JSONSchema()["required"]; ok {
		t.Fatal("schema without required params must omit the required key")
	}
}

func TestResultConstructors(t *testing.T) {
	t.Parallel()

	ok := Success(nil)
	if !ok.Ok() || ok.Payload == nil {
		t.Fatalf("Success(nil) = %+v, want ok with empty payload", ok)
	}

	fail := Fail(FailQuota, "rate limited after %d calls", 3)
	if fail.Ok() {
		t.Fatal("Fail() reported Ok")
	}
	if fail.Failure.Kind != FailQuota {
		t.Fatalf("Kind = %q, want %q", fail.Failure.Kind, FailQuota)
	}
	if fail.Failure.Detail != "rate limited after 3 calls" {
		t.Fatalf("Detail = %q", fail.Failure.Detail)
	}
}

func TestResolutionMatched(t *testing.T) {
	t.Parallel()

	if (Resolution{Reply: "hello"}).Matched() {
		t.Fatal("reply-only resolution must not match")
	}
	if !(Resolution{Action: "send_email"}).Matched() {
		t.Fatal("action resolution must match")
	}
}
