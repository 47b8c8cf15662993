// Package review exports partitions to an .xlsx workbook for proofreading
// and reads corrected workbooks back.
package review

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/supersix/qbank/pkg/question"
)

// MinOptionColumns is the number of option columns always present.
const MinOptionColumns = 5

// Sheet is one partition in the workbook.
type Sheet struct {
	Partition question.Partition
	Records   []question.Record
}

func letter(i int) string { return string(rune('A' + i)) }

func headers(options int) []string {
	h := []string{"#", "Year", "Question"}
	for i := 0; i < options; i++ {
		h = append(h, letter(i))
	}
	return append(h, "Answer", "Explanation", "Subject", "Topic", "Difficulty")
}

// Build creates a workbook with one sheet per partition, in the given order.
func Build(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, errors.New("no partitions to export")
	}
	f := excelize.NewFile()
	for i, s := range sheets {
		name := s.Partition.String()
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return nil, fmt.Errorf("sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, s.Records); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, recs []question.Record) error {
	options := MinOptionColumns
	for _, r := range recs {
		if len(r.Options) > options {
			options = len(r.Options)
		}
	}
	hdr := headers(options)
	for i, h := range hdr {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, r := range recs {
		values := []any{i + 1, r.Year, r.Text}
		for j := 0; j < options; j++ {
			v := ""
			if j < len(r.Options) {
				v = r.Options[j]
			}
			values = append(values, v)
		}
		answer := ""
		if r.Valid() {
			answer = letter(r.CorrectIndex)
		}
		values = append(values, answer, r.Explanation, r.Subject, r.Topic, r.Difficulty)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	last, _ := excelize.ColumnNumberToName(len(hdr))
	_ = f.SetColWidth(sheet, "A", "B", 8)
	_ = f.SetColWidth(sheet, "C", "C", 60)
	_ = f.SetColWidth(sheet, "D", last, 22)
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// Write encodes the workbook for sheets to w.
func Write(w io.Writer, sheets []Sheet) error {
	f, err := Build(sheets)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write excel: %w", err)
	}
	return nil
}

// Bytes is Write into memory.
func Bytes(sheets []Sheet) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, sheets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RowError is a workbook row that could not be turned back into a record.
type RowError struct {
	Sheet string
	Row   int
	Msg   string
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Msg)
}

// Read parses a workbook produced by Write, after manual edits. Rows that
// cannot be read are returned as RowErrors and left out.
func Read(r io.Reader) ([]Sheet, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Sheet
	var rowErrs []RowError
	for _, name := range f.GetSheetList() {
		college, block, ok := strings.Cut(name, " ")
		if !ok {
			continue
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, nil, fmt.Errorf("read rows of %s: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		s := Sheet{Partition: question.Partition{College: college, Block: block}}
		recs, errs, err := readRows(name, rows, s.Partition)
		if err != nil {
			return nil, nil, err
		}
		s.Records = recs
		rowErrs = append(rowErrs, errs...)
		out = append(out, s)
	}
	return out, rowErrs, nil
}

func readRows(sheet string, rows [][]string, part question.Partition) ([]question.Record, []RowError, error) {
	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{"Question", "Answer", "A"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("%s: missing required column: %s", sheet, col)
		}
	}
	cell := func(row []string, col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var recs []question.Record
	var errs []RowError
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		text := cell(row, "Question")
		if text == "" {
			continue
		}
		var opts []string
		for j := 0; ; j++ {
			col := letter(j)
			if _, ok := header[col]; !ok {
				break
			}
			if v := cell(row, col); v != "" {
				opts = append(opts, v)
			}
		}
		ans := strings.ToUpper(cell(row, "Answer"))
		if len(ans) != 1 || ans[0] < 'A' || int(ans[0]-'A') >= len(opts) {
			errs = append(errs, RowError{Sheet: sheet, Row: i + 1, Msg: fmt.Sprintf("answer %q does not name an option", ans)})
			continue
		}
		recs = append(recs, question.Record{
			Text:         text,
			Options:      opts,
			CorrectIndex: int(ans[0] - 'A'),
			Explanation:  cell(row, "Explanation"),
			Subject:      cell(row, "Subject"),
			Topic:        cell(row, "Topic"),
			Difficulty:   cell(row, "Difficulty"),
			Block:        part.Block,
			College:      part.College,
			Year:         cell(row, "Year"),
		})
	}
	return recs, errs, nil
}
