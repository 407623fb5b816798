// Package knowledge implements spec.md §4.6: dedup, hybrid search, and the
// ranking state machine for extracted memories and skills. Grounded on the
// teacher's SQLiteLearningDB (internal/memory/learning.go), whose
// cosineSimilarity/CompactKnowledge shapes generalize here into the formal
// near-duplicate and ranking formulas this spec requires.
package knowledge

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var latinSuffixes = []string{"ing", "ed", "es", "s", "ly"}

// tokenize implements spec.md §4.6.2's mixed Latin/CJK tokenizer: NFC
// normalize, split runs by script, apply the Latin or CJK rule for each
// run, concatenate, and collapse the resulting multiset to a set.
func tokenize(text string) map[string]struct{} {
	normalized := norm.NFC.String(text)
	tokens := make([]string, 0, 32)

	for _, run := range splitRuns(normalized) {
		if run.cjk {
			tokens = append(tokens, cjkBigrams(run.text)...)
		} else {
			tokens = append(tokens, latinTokens(run.text)...)
		}
	}

	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

type scriptRun struct {
	text string
	cjk  bool
}

// splitRuns partitions s into maximal runs of CJK characters and
// non-CJK characters, preserving order (spec.md §4.6.2's "mixed runs:
// emit both token sets, concatenated").
func splitRuns(s string) []scriptRun {
	var runs []scriptRun
	var cur strings.Builder
	curCJK := false
	started := false

	flush := func() {
		if cur.Len() > 0 {
			runs = append(runs, scriptRun{text: cur.String(), cjk: curCJK})
			cur.Reset()
		}
	}

	for _, r := range s {
		isCJK := unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
		if started && isCJK != curCJK {
			flush()
		}
		curCJK = isCJK
		started = true
		cur.WriteRune(r)
	}
	flush()
	return runs
}

// latinTokens implements the Latin half of §4.6.2: lowercase, split on
// non-letter/digit, drop length < 2, stem.
func latinTokens(run string) []string {
	lower := strings.ToLower(run)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips the first matching suffix in order, requiring the
// remaining stem to be at least 3 runes long (spec.md §4.6.2).
func stem(word string) string {
	for _, suffix := range latinSuffixes {
		if strings.HasSuffix(word, suffix) {
			remainder := word[:len(word)-len(suffix)]
			if len([]rune(remainder)) >= 3 {
				return remainder
			}
			break
		}
	}
	return word
}

// cjkBigrams emits character bigrams via a sliding window of size 2
// (spec.md §4.6.2). A run of exactly one character is kept as a
// single-character token so it is not silently dropped.
func cjkBigrams(run string) []string {
	runes := []rune(run)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) == 1 {
		return []string{string(runes)}
	}

	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

// jaccard computes the Jaccard similarity of two token sets, 0 when both
// are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
