package parser

import (
	"fmt"
	"strings"
)

// NormalizeText collapses whitespace runs, including newlines and
// non-breaking spaces, into single spaces and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeHeader turns a raw header row into usable column names: blank
// names become "Unnamed: <index>" and repeats get ".1", ".2" suffixes.
func NormalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	counts := make(map[string]int)

	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for used[name] {
			counts[base]++
			name = fmt.Sprintf("%s.%d", base, counts[base])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// isHidden reports whether an inline style hides the element.
func isHidden(style string) bool {
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(compact, "display:none")
}
