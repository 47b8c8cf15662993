package question

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

var (
	// a. / B) / c: followed by optional whitespace, at the start of an option.
	reLabel = regexp.MustCompile(`^\s*[a-eA-E][.):]\s*`)
	// a bare answer letter, optionally suffixed with "." or ")".
	reAnswerLetter = regexp.MustCompile(`^([a-eA-E])[.)]?$`)
)

// StripLabel removes one leading "a." style label from an option.
func StripLabel(option string) string {
	if loc := reLabel.FindStringIndex(option); loc != nil {
		return option[loc[1]:]
	}
	return option
}

// StripLabels applies StripLabel to every option.
func StripLabels(options []string) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = StripLabel(o)
	}
	return out
}

// AnswerToIndex maps an answer letter (a..e, any case, optional "." or ")")
// to a zero-based index. Anything else maps to 0.
func AnswerToIndex(answer string) int {
	idx, ok := letterIndex(answer)
	if !ok {
		return 0
	}
	return idx
}

func letterIndex(answer string) (int, bool) {
	m := reAnswerLetter.FindStringSubmatch(strings.TrimSpace(answer))
	if m == nil {
		return 0, false
	}
	return int(strings.ToLower(m[1])[0] - 'a'), true
}

// ResolveAnswer turns a raw answer value into an index into options.
// It accepts answer letters, integer indexes and the text of an option.
// ok is false when the value was not understood or points outside options;
// the returned index is then 0.
func ResolveAnswer(v any, options []string) (idx int, ok bool) {
	switch a := v.(type) {
	case json.Number:
		n, err := a.Int64()
		if err != nil {
			return 0, false
		}
		return inRange(int(n), len(options))
	case float64:
		if a != math.Trunc(a) {
			return 0, false
		}
		return inRange(int(a), len(options))
	case int:
		return inRange(a, len(options))
	case string:
		if i, found := letterIndex(a); found {
			return inRange(i, len(options))
		}
		want := normalizeOption(StripLabel(a))
		if want == "" {
			return 0, false
		}
		for i, o := range options {
			if normalizeOption(o) == want {
				return i, true
			}
		}
	}
	return 0, false
}

func inRange(i, n int) (int, bool) {
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func normalizeOption(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
