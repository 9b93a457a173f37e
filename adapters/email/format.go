package email

import (
	"fmt"
	"strings"
)

func formatSend(p map[string]any) string {
	if cc, ok := p["cc"]; ok {
		return fmt.Sprintf("Email sent to %v (cc %v), subject %q.", p["to"], cc, p["subject"])
	}
	return fmt.Sprintf("Email sent to %v, subject %q.", p["to"], p["subject"])
}

func formatUnread(p map[string]any) string {
	n, _ := p["count"].(int)
	switch n {
	case 0:
		return "No unread emails right now."
	case 1:
		return "You have 1 unread email."
	default:
		return fmt.Sprintf("You have %d unread emails.", n)
	}
}

func formatRecent(p map[string]any) string {
	rows, _ := p["emails"].([]map[string]any)
	folder, _ := p["folder"].(string)
	if len(rows) == 0 {
		return fmt.Sprintf("No emails in %s.", folder)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Latest %d in %s:", len(rows), folder)
	writeEmailLines(&b, rows)
	return b.String()
}

func formatSearch(p map[string]any) string {
	rows, _ := p["emails"].([]map[string]any)
	query, _ := p["query"].(string)
	if len(rows) == 0 {
		return fmt.Sprintf("No emails matched %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching %q:", len(rows), query)
	writeEmailLines(&b, rows)
	return b.String()
}

func writeEmailLines(b *strings.Builder, rows []map[string]any) {
	for i, row := range rows {
		subject := row["subject"]
		if s, _ := subject.(string); strings.TrimSpace(s) == "" {
			subject = "(no subject)"
		}
		fmt.Fprintf(b, "\n%d. %v, from %v", i+1, subject, row["from"])
		if date, _ := row["date"].(string); date != "" {
			fmt.Fprintf(b, " (%s)", date)
		}
	}
}
