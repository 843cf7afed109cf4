package prompt

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// [Source 1], [Sources 1, 3], [1], [2,4]
	citationPattern = regexp.MustCompile(`(?i)\[(?:sources?\s*)?(\d+(?:\s*,\s*\d+)*)\]`)

	insufficientMarkers = []string{
		"do not contain enough information",
		"does not contain enough information",
		"not enough information",
		"insufficient information",
		"insufficient context",
	}
)

// ParseCitations returns the citation indices referenced in text, in order
// of first appearance.
func ParseCitations(text string) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// StatesInsufficientContext reports whether text already tells the reader
// that the documents could not answer the question.
func StatesInsufficientContext(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range insufficientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
