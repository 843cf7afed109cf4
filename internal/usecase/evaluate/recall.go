package evaluate

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {}, "being": {}, "could": {},
	"does": {}, "each": {}, "from": {}, "have": {}, "into": {}, "itself": {}, "just": {},
	"more": {}, "most": {}, "must": {}, "only": {}, "other": {}, "over": {}, "same": {},
	"should": {}, "some": {}, "such": {}, "than": {}, "that": {}, "their": {}, "them": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "those": {}, "under": {},
	"very": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"will": {}, "with": {}, "within": {}, "would": {}, "your": {},
}

// keywords returns the distinct content words of text: lowercase, at least
// four letters, stopwords removed.
func keywords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// KeywordRecall is the share of the expected answer's keywords that appear
// in the generated answer. An expected answer without keywords scores 0.
func KeywordRecall(expected, generated string) float64 {
	want := keywords(expected)
	if len(want) == 0 {
		return 0
	}
	got := keywords(generated)
	hit := 0
	for w := range want {
		if _, ok := got[w]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}
