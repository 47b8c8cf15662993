// Package store reads and writes partition files: UTF-8 SQL INSERT
// statements, one per question, obfuscated with the codec.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/supersix/qbank/pkg/question"
)

// Table is the table name used in partition statements.
const Table = "preproff"

// Columns is the column order written by Format.
var Columns = []string{"text", "options", "correct_index", "explanation", "subject", "topic", "difficulty", "block", "college", "year"}

const keyword = "INSERT INTO " + Table

// Quote escapes s as a single-quoted SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Format renders one record as an INSERT statement.
func Format(r question.Record) string {
	var b strings.Builder
	b.WriteString(keyword)
	b.WriteString(" (")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(") VALUES (")
	vals := []string{
		Quote(r.Text),
		Quote(OptionsJSON(r.Options)),
		strconv.Itoa(r.CorrectIndex),
		Quote(r.Explanation),
		Quote(r.Subject),
		Quote(r.Topic),
		Quote(r.Difficulty),
		Quote(r.Block),
		Quote(r.College),
		Quote(r.Year),
	}
	b.WriteString(strings.Join(vals, ", "))
	b.WriteString(");")
	return b.String()
}

// FormatAll renders records as newline-separated statements.
func FormatAll(records []question.Record) string {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = Format(r)
	}
	return strings.Join(lines, "\n")
}

// OptionsJSON encodes options as a JSON array without HTML escaping.
func OptionsJSON(opts []string) string {
	if opts == nil {
		opts = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(opts)
	return strings.TrimSuffix(buf.String(), "\n")
}

// ParseStats describes how a decoded partition was read.
type ParseStats struct {
	Statements int
	// Merged counts statements that spanned more than one line.
	Merged int
	// Bad counts statements that could not be parsed; they are dropped.
	Bad int
	// OptionRepairs counts option lists that were not valid JSON and were
	// split on commas instead.
	OptionRepairs int
}

// Split returns the raw text of every statement in text, each starting at
// the INSERT keyword. Keywords inside quoted strings do not start a statement.
func Split(text string) []string {
	starts := keywordOffsets(text)
	out := make([]string, 0, len(starts))
	for i, s := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if stmt := strings.TrimSpace(text[s:end]); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func keywordOffsets(text string) []int {
	var offs []int
	inQuote := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '\'' {
			inQuote = !inQuote
			continue
		}
		if ch != 'I' && ch != 'i' {
			continue
		}
		// A keyword at the start of a line always begins a statement, so one
		// statement with an unbalanced quote cannot swallow the rest of the file.
		lineStart := i == 0 || text[i-1] == '\n'
		if (!inQuote || lineStart) && hasKeywordAt(text, i) {
			inQuote = false
			offs = append(offs, i)
			i += len(keyword) - 1
		}
	}
	return offs
}

func hasKeywordAt(text string, i int) bool {
	if len(text)-i < len(keyword) || !strings.EqualFold(text[i:i+len(keyword)], keyword) {
		return false
	}
	if i > 0 && isIdent(rune(text[i-1])) {
		return false
	}
	if j := i + len(keyword); j < len(text) && isIdent(rune(text[j])) {
		return false
	}
	return true
}

func isIdent(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Parse reads every statement in decoded partition text. Unparseable
// statements are counted and skipped.
func Parse(text string) ([]question.Record, ParseStats) {
	var st ParseStats
	var out []question.Record
	for _, raw := range Split(text) {
		st.Statements++
		rec, repaired, err := ParseStatement(raw)
		if err != nil {
			st.Bad++
			continue
		}
		if strings.Contains(raw, "\n") {
			st.Merged++
		}
		if repaired {
			st.OptionRepairs++
		}
		out = append(out, rec)
	}
	return out, st
}

// ParseStatement parses one INSERT statement. repaired reports that the
// options column was not valid JSON.
func ParseStatement(stmt string) (rec question.Record, repaired bool, err error) {
	p := &parser{s: stmt}
	p.skipSpace()
	if !p.consumeFold(keyword) {
		return rec, false, fmt.Errorf("statement does not start with %q", keyword)
	}
	p.skipSpace()
	cols, err := p.list(p.ident)
	if err != nil {
		return rec, false, fmt.Errorf("column list: %w", err)
	}
	p.skipSpace()
	if !p.consumeFold("VALUES") {
		return rec, false, fmt.Errorf("missing VALUES at offset %d", p.i)
	}
	p.skipSpace()
	vals, err := p.list(p.value)
	if err != nil {
		return rec, false, fmt.Errorf("values: %w", err)
	}
	p.skipSpace()
	p.consume(";")
	p.skipSpace()
	if p.i != len(p.s) {
		return rec, false, fmt.Errorf("trailing text at offset %d", p.i)
	}
	if len(cols) != len(vals) {
		return rec, false, fmt.Errorf("%d columns but %d values", len(cols), len(vals))
	}

	fields := make(map[string]string, len(cols))
	for i, c := range cols {
		fields[strings.ToLower(c)] = vals[i]
	}
	text, ok := fields["text"]
	if !ok || text == "" {
		return rec, false, fmt.Errorf("missing text")
	}
	rawOpts, ok := fields["options"]
	if !ok {
		return rec, false, fmt.Errorf("missing options")
	}
	opts, repaired := parseOptions(rawOpts)
	idx, err := strconv.Atoi(strings.TrimSpace(fields["correct_index"]))
	if err != nil {
		return rec, false, fmt.Errorf("correct_index: %w", err)
	}
	rec = question.Record{
		Text:         text,
		Options:      opts,
		CorrectIndex: idx,
		Explanation:  fields["explanation"],
		Subject:      fields["subject"],
		Topic:        fields["topic"],
		Difficulty:   fields["difficulty"],
		Block:        fields["block"],
		College:      fields["college"],
		Year:         fields["year"],
	}
	return rec, repaired, nil
}

func parseOptions(raw string) ([]string, bool) {
	var opts []string
	if err := json.Unmarshal([]byte(raw), &opts); err == nil {
		return opts, false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "["), "]")
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			opts = append(opts, part)
		}
	}
	return opts, true
}

type parser struct {
	s string
	i int
}

func (p *parser) skipSpace() {
	for p.i < len(p.s) && unicode.IsSpace(rune(p.s[p.i])) {
		p.i++
	}
}

func (p *parser) consume(lit string) bool {
	if strings.HasPrefix(p.s[p.i:], lit) {
		p.i += len(lit)
		return true
	}
	return false
}

func (p *parser) consumeFold(lit string) bool {
	if len(p.s)-p.i >= len(lit) && strings.EqualFold(p.s[p.i:p.i+len(lit)], lit) {
		p.i += len(lit)
		return true
	}
	return false
}

// list parses "(item, item, ...)".
func (p *parser) list(item func() (string, error)) ([]string, error) {
	if !p.consume("(") {
		return nil, fmt.Errorf("expected ( at offset %d", p.i)
	}
	var out []string
	for {
		p.skipSpace()
		v, err := item()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.consume(",") {
			continue
		}
		if p.consume(")") {
			return out, nil
		}
		return nil, fmt.Errorf("expected , or ) at offset %d", p.i)
	}
}

func (p *parser) ident() (string, error) {
	start := p.i
	for p.i < len(p.s) && isIdent(rune(p.s[p.i])) {
		p.i++
	}
	if p.i == start {
		return "", fmt.Errorf("expected column name at offset %d", p.i)
	}
	return p.s[start:p.i], nil
}

// value parses a quoted string ('' escapes a quote) or a bare token such as
// a number or NULL.
func (p *parser) value() (string, error) {
	if p.consume("'") {
		var b strings.Builder
		for p.i < len(p.s) {
			ch := p.s[p.i]
			if ch == '\'' {
				if p.i+1 < len(p.s) && p.s[p.i+1] == '\'' {
					b.WriteByte('\'')
					p.i += 2
					continue
				}
				p.i++
				return b.String(), nil
			}
			b.WriteByte(ch)
			p.i++
		}
		return "", fmt.Errorf("unterminated string")
	}
	start := p.i
	for p.i < len(p.s) && p.s[p.i] != ',' && p.s[p.i] != ')' && !unicode.IsSpace(rune(p.s[p.i])) {
		p.i++
	}
	if p.i == start {
		return "", fmt.Errorf("expected value at offset %d", p.i)
	}
	tok := p.s[start:p.i]
	if strings.EqualFold(tok, "NULL") {
		return "", nil
	}
	return tok, nil
}
