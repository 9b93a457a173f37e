package contract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// String returns the named parameter as a trimmed string, or "" when absent.
func (p ParameterSet) String(name string) string {
	v, _ := p[name].(string)
	return strings.TrimSpace(v)
}

// StringOr returns the named parameter, or fallback when absent or blank.
func (p ParameterSet) StringOr(name, fallback string) string {
	if v := p.String(name); v != "" {
		return v
	}
	return fallback
}

// Int reads the named parameter as an int, tolerating the numeric shapes
// JSON decoding produces. Returns fallback when absent or unparseable.
func (p ParameterSet) Int(name string, fallback int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// Bool reads the named parameter as a bool. Returns fallback when absent.
func (p ParameterSet) Bool(name string, fallback bool) bool {
	switch v := p[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// Has reports whether the named parameter is present at all.
func (p ParameterSet) Has(name string) bool {
	_, ok := p[name]
	return ok
}
