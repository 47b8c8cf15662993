// Package question turns raw extracted candidates into canonical records and
// removes duplicates within a partition.
package question

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/supersix/qbank/pkg/extract"
)

// DefaultDifficulty is used when the policy does not set one.
const DefaultDifficulty = "Medium"

// Fixup is a text correction applied to stems, options and explanations.
type Fixup struct {
	Pattern *regexp.Regexp
	Replace string
}

// Policy holds the caller-supplied rules that differ between source batches.
type Policy struct {
	Difficulty string
	Subject    string
	Topic      string

	// College and Block, when set, assign every record to that partition
	// regardless of what the candidate says.
	College string
	Block   string

	// Colleges maps source id prefixes (case-insensitive) to college codes.
	Colleges map[string]string

	// SentinelYears are placeholder year values; they are replaced with
	// FallbackYear when it is set and kept verbatim otherwise.
	SentinelYears []string
	FallbackYear  string

	// MinOptions is the minimum number of non-empty options; values below 2 mean 2.
	MinOptions int

	Fixups []Fixup
}

// Reasons wrapped by FieldError.
var (
	ErrMissing       = errors.New("missing")
	ErrNotList       = errors.New("not a list")
	ErrTooFewOptions = errors.New("too few options")
)

// FieldError reports a candidate that cannot become a record.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Issues describes non-fatal problems found while normalizing one candidate.
type Issues struct {
	AnswerFallback bool
	YearDefaulted  bool
	Fixups         int
}

// Stats aggregates a NormalizeAll run.
type Stats struct {
	Accepted        int
	MissingFields   int
	TooFewOptions   int
	AnswerFallbacks int
	YearsDefaulted  int
	Fixups          int
}

// Normalizer applies a Policy to candidates.
type Normalizer struct {
	policy   Policy
	prefixes []string
	sentinel map[string]bool
	log      *zap.Logger
}

var unescaper = strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\"`, `"`, `\'`, "'", `\t`, "\t")

// Unescape resolves escape sequences that survived a lenient parse.
func Unescape(s string) string {
	return unescaper.Replace(s)
}

// NewNormalizer validates p and returns a Normalizer. A nil logger disables logging.
func NewNormalizer(p Policy, log *zap.Logger) (*Normalizer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if p.Difficulty == "" {
		p.Difficulty = DefaultDifficulty
	}
	if p.MinOptions < 2 {
		p.MinOptions = 2
	}
	for i, f := range p.Fixups {
		if f.Pattern == nil {
			return nil, fmt.Errorf("fixup %d: nil pattern", i)
		}
	}
	n := &Normalizer{policy: p, log: log, sentinel: make(map[string]bool)}
	for _, y := range p.SentinelYears {
		n.sentinel[strings.ToLower(strings.TrimSpace(y))] = true
	}
	colleges := make(map[string]string, len(p.Colleges))
	for k, v := range p.Colleges {
		k = strings.ToLower(k)
		colleges[k] = v
		n.prefixes = append(n.prefixes, k)
	}
	n.policy.Colleges = colleges
	// Longest prefix first so "kgmc" wins over "kmc"-style overlaps.
	sort.Slice(n.prefixes, func(i, j int) bool {
		if len(n.prefixes[i]) != len(n.prefixes[j]) {
			return len(n.prefixes[i]) > len(n.prefixes[j])
		}
		return n.prefixes[i] < n.prefixes[j]
	})
	return n, nil
}

// Normalize converts one candidate. Errors are *FieldError values.
func (n *Normalizer) Normalize(c extract.Candidate) (Record, Issues, error) {
	var iss Issues

	text := strings.TrimSpace(Unescape(c.String(extract.TextKeys)))
	if text == "" {
		return Record{}, iss, &FieldError{Field: "text", Err: ErrMissing}
	}
	rawOpts, ok := c.Lookup(extract.OptionsKeys)
	if !ok {
		return Record{}, iss, &FieldError{Field: "options", Err: ErrMissing}
	}
	list, ok := rawOpts.([]any)
	if !ok {
		return Record{}, iss, &FieldError{Field: "options", Err: ErrNotList}
	}
	slots := make([]string, len(list))
	for i, o := range list {
		slots[i] = strings.TrimSpace(Unescape(StripLabel(scalarString(o))))
	}

	// The answer refers to source positions; it is resolved against every
	// slot and shifted as empty options are dropped.
	answer, _ := c.Lookup(extract.AnswerKeys)
	raw, ok := ResolveAnswer(answer, slots)
	idx := 0
	var options []string
	for i, s := range slots {
		if s == "" {
			continue
		}
		if ok && i == raw {
			idx = len(options)
		}
		options = append(options, s)
	}
	if len(options) < n.policy.MinOptions {
		return Record{}, iss, &FieldError{Field: "options", Err: ErrTooFewOptions}
	}
	if ok && slots[raw] == "" {
		ok = false
		n.log.Warn("answer points at an empty option",
			zap.Any("answer", answer),
			zap.String("text", prefix(text, 60)))
	}
	explanation := strings.TrimSpace(Unescape(c.String(extract.ExplanationKeys)))

	text, iss.Fixups = n.fix(text, iss.Fixups)
	for i := range options {
		options[i], iss.Fixups = n.fix(options[i], iss.Fixups)
	}
	explanation, iss.Fixups = n.fix(explanation, iss.Fixups)

	if !ok {
		iss.AnswerFallback = true
		n.log.Warn("unrecognized answer, defaulting to first option",
			zap.Any("answer", answer),
			zap.Int("options", len(options)),
			zap.String("text", prefix(text, 60)))
	}

	rec := Record{
		Text:         text,
		Options:      options,
		CorrectIndex: idx,
		Explanation:  explanation,
		Subject:      n.policy.Subject,
		Topic:        n.policy.Topic,
		Difficulty:   n.policy.Difficulty,
		College:      n.college(c),
		Block:        n.block(c),
	}
	rec.Year, iss.YearDefaulted = n.year(scalarString(c["year"]))
	return rec, iss, nil
}

// NormalizeAll converts candidates in order, dropping the ones that fail.
func (n *Normalizer) NormalizeAll(cands []extract.Candidate) ([]Record, Stats) {
	var st Stats
	out := make([]Record, 0, len(cands))
	for _, c := range cands {
		rec, iss, err := n.Normalize(c)
		if err != nil {
			if errors.Is(err, ErrTooFewOptions) {
				st.TooFewOptions++
			} else {
				st.MissingFields++
			}
			n.log.Warn("dropping candidate", zap.Error(err), zap.String("text", prefix(c.String(extract.TextKeys), 60)))
			continue
		}
		st.Accepted++
		st.Fixups += iss.Fixups
		if iss.AnswerFallback {
			st.AnswerFallbacks++
		}
		if iss.YearDefaulted {
			st.YearsDefaulted++
		}
		out = append(out, rec)
	}
	return out, st
}

// ResolveYear applies the sentinel policy to a stored year value.
func (n *Normalizer) ResolveYear(year string) (string, bool) {
	return n.year(year)
}

func (n *Normalizer) year(raw string) (string, bool) {
	y := strings.TrimSpace(raw)
	if n.sentinel[strings.ToLower(y)] && n.policy.FallbackYear != "" {
		return n.policy.FallbackYear, y != n.policy.FallbackYear
	}
	return y, false
}

func (n *Normalizer) college(c extract.Candidate) string {
	if n.policy.College != "" {
		return n.policy.College
	}
	if v := strings.TrimSpace(scalarString(c["college"])); v != "" {
		return n.CollegeFor(v)
	}
	return n.CollegeFor(scalarString(c["id"]))
}

// CollegeFor maps a source id such as "KGMC-J-12" to a college code.
func (n *Normalizer) CollegeFor(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range n.prefixes {
		if strings.HasPrefix(id, p) {
			return n.policy.Colleges[p]
		}
	}
	return id
}

func (n *Normalizer) block(c extract.Candidate) string {
	if n.policy.Block != "" {
		return n.policy.Block
	}
	b := strings.TrimSpace(scalarString(c["block"]))
	b = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(b, "Block "), "block "))
	return strings.ToUpper(b)
}

func (n *Normalizer) fix(s string, count int) (string, int) {
	for _, f := range n.policy.Fixups {
		if f.Pattern.MatchString(s) {
			s = f.Pattern.ReplaceAllString(s, f.Replace)
			count++
		}
	}
	return s, count
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return fmt.Sprintf("%g", x)
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		return ""
	}
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
