package dispatcher

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/attachehq/attache/agent/contract"
)

var kindWords = map[contractx.FailureKind]string{
	contractx.FailValidation:   "validation failure",
	contractx.FailAuth:         "authentication error",
	contractx.FailTransport:    "transport error",
	contractx.FailQuota:        "quota error",
	contractx.FailInvalidInput: "invalid input",
}

func renderSuccess(a contractx.Action, res contractx.Result) string {
	if a.Format != nil {
		if line := strings.TrimSpace(a.Format(res.Payload)); line != "" {
			return line
		}
	}
	summary := payloadSummary(res.Payload)
	if summary == "" {
		return fmt.Sprintf("Done: %s completed.", a.Name)
	}
	return fmt.Sprintf("Done: %s completed (%s).", a.Name, summary)
}

// renderFailure always names the failure kind in words and only ever shows
// the sanitized detail the adapter produced, never a raw upstream error.
func renderFailure(f *contractx.Failure) string {
	words, ok := kindWords[f.Kind]
	if !ok {
		words = string(f.Kind)
	}
	detail := strings.TrimSpace(f.Detail)
	if detail == "" {
		return fmt.Sprintf("Sorry, that didn't work (%s).", words)
	}
	return fmt.Sprintf("Sorry, that didn't work (%s): %s", words, detail)
}

func renderClarification(a contractx.Action, violations []string) string {
	return fmt.Sprintf("I can't run %s yet: %s. Could you fill in the gaps?",
		a.Name, strings.Join(violations, "; "))
}

func payloadSummary(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, payload[k]))
	}
	return strings.Join(parts, ", ")
}
