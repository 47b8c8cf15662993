package extract

// Candidate is an untyped record recovered from a raw export, as decoded by
// encoding/json (numbers are json.Number).
type Candidate map[string]any

// Accepted key aliases per logical field, in preference order.
var (
	TextKeys        = []string{"question", "text"}
	OptionsKeys     = []string{"options"}
	AnswerKeys      = []string{"answer", "correct", "correctAnswer", "correct_answer", "correctIndex", "correct_index"}
	ExplanationKeys = []string{"explanation"}
)

// Lookup returns the value of the first alias present in c.
func (c Candidate) Lookup(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := c[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first alias holding a string value.
func (c Candidate) String(keys []string) string {
	for _, k := range keys {
		if s, ok := c[k].(string); ok {
			return s
		}
	}
	return ""
}

// HasRecordShape reports whether c carries the mandatory question fields:
// a non-empty stem, an options list and some answer indicator.
func HasRecordShape(c Candidate) bool {
	if c.String(TextKeys) == "" {
		return false
	}
	opts, ok := c.Lookup(OptionsKeys)
	if !ok {
		return false
	}
	if _, ok := opts.([]any); !ok {
		return false
	}
	_, ok = c.Lookup(AnswerKeys)
	return ok
}
