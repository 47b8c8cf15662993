// Package extract recovers question objects from exports that are not valid
// JSON as a whole: concatenated arrays, prose between fragments, code fences,
// truncated tails.
package extract

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Span reasons.
const (
	ReasonParse      = "parse"
	ReasonIncomplete = "incomplete"
)

// Span is a rejected region of the input, End exclusive.
type Span struct {
	Start  int
	End    int
	Reason string
}

// Result is the outcome of one Extract call.
type Result struct {
	Candidates []Candidate
	// Rejected counts spans that could not be parsed, including an unclosed
	// span at end of input.
	Rejected int
	// Incomplete is the part of Rejected caused by input ending mid-fragment.
	Incomplete int
	// Skipped counts parsed objects that lack the mandatory record fields.
	Skipped int
	Spans   []Span
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRequiredFields replaces the record-shape check.
func WithRequiredFields(fn func(Candidate) bool) Option {
	return func(e *Extractor) { e.isRecord = fn }
}

// WithLogger sets the logger used for per-span debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.log = l
		}
	}
}

// Extractor scans text for balanced {...} / [...] fragments and keeps the ones
// that decode to question records.
type Extractor struct {
	isRecord func(Candidate) bool
	log      *zap.Logger
}

// New returns an Extractor using HasRecordShape unless overridden.
func New(opts ...Option) *Extractor {
	e := &Extractor{isRecord: HasRecordShape, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract never fails; problems are reported through the Result counters.
func (e *Extractor) Extract(text string) Result {
	var res Result
	tailSeen := false
	pos := 0
	for pos < len(text) {
		start, end, closed := nextFragment(text, pos)
		if start < 0 {
			break
		}
		if !closed {
			// Input ended inside a fragment. Count it once, then keep looking
			// for complete objects nested in the truncated region.
			if !tailSeen {
				tailSeen = true
				res.Rejected++
				res.Incomplete++
				res.Spans = append(res.Spans, Span{Start: start, End: len(text), Reason: ReasonIncomplete})
				e.log.Debug("unterminated fragment", zap.Int("offset", start))
			}
			pos = start + 1
			continue
		}

		frag := text[start : end+1]
		v, err := decode(frag)
		if err != nil {
			res.Rejected++
			res.Spans = append(res.Spans, Span{Start: start, End: end + 1, Reason: ReasonParse})
			e.log.Debug("unparseable fragment", zap.Int("offset", start), zap.Error(err))
			// Step one byte so fragments nested in the failed span are still found.
			pos = start + 1
			continue
		}

		switch val := v.(type) {
		case map[string]any:
			c := Candidate(val)
			if e.isRecord(c) {
				res.Candidates = append(res.Candidates, c)
				pos = end + 1
				continue
			}
			// Wrapper objects like {"questions": [...]} hold the records one level down.
			res.Skipped++
			pos = start + 1
		case []any:
			for _, el := range val {
				obj, ok := el.(map[string]any)
				if !ok {
					continue
				}
				if c := Candidate(obj); e.isRecord(c) {
					res.Candidates = append(res.Candidates, c)
				} else {
					res.Skipped++
				}
			}
			pos = end + 1
		default:
			pos = end + 1
		}
	}
	return res
}

// nextFragment finds the first opener at depth 0 at or after pos and the
// index of its matching closer. closed is false when text ends first; start
// is -1 when there is no opener left.
func nextFragment(text string, pos int) (start, end int, closed bool) {
	depth := 0
	inString := false
	escaped := false
	start = -1
	for i := pos; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{', '[':
			if depth == 0 {
				start = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return start, i, true
			}
		}
	}
	return start, -1, false
}

func decode(frag string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(frag))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
