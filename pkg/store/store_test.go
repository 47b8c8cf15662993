package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supersix/qbank/pkg/codec"
	"github.com/supersix/qbank/pkg/question"
)

func sample() question.Record {
	return question.Record{
		Text:         "Which of the following is the patient's \"drug of choice\"?\nSelect one.",
		Options:      []string{"Aspirin", "O'Brien's <mix>", "Heparin", "None"},
		CorrectIndex: 2,
		Explanation:  "It's heparin.",
		Subject:      "Medicine",
		Topic:        "Cardiology",
		Difficulty:   "Medium",
		Block:        "J",
		College:      "kmc",
		Year:         "2023",
	}
}

func TestFormat(t *testing.T) {
	r := question.Record{Text: "Q", Options: []string{"a", "b"}, CorrectIndex: 1, Block: "J", College: "kmc", Year: "2024"}
	got := Format(r)
	want := `INSERT INTO preproff (text, options, correct_index, explanation, subject, topic, difficulty, block, college, year) VALUES ('Q', '["a","b"]', 1, '', '', '', '', 'J', 'kmc', '2024');`
	assert.Equal(t, want, got)
}

func TestFormatParseRoundTrip(t *testing.T) {
	a := sample()
	b := sample()
	b.Text = "Second question"
	b.Options = []string{"x", "y"}
	b.CorrectIndex = 0

	recs, st := Parse(FormatAll([]question.Record{a, b}))
	require.Len(t, recs, 2)
	assert.Equal(t, a, recs[0])
	assert.Equal(t, b, recs[1])
	assert.Equal(t, 2, st.Statements)
	assert.Equal(t, 1, st.Merged, "first statement spans two lines")
	assert.Zero(t, st.Bad)
}

func TestSplitIgnoresKeywordInsideString(t *testing.T) {
	r := sample()
	r.Text = "Explain why INSERT INTO preproff appears here"
	stmts := Split(Format(r) + "\n" + Format(sample()))
	assert.Len(t, stmts, 2)
}

func TestParseCountsBadStatements(t *testing.T) {
	text := Format(sample()) + "\n" +
		"INSERT INTO preproff (text, options) VALUES ('broken\n" +
		Format(sample())
	recs, st := Parse(text)
	assert.Len(t, recs, 2)
	assert.Equal(t, 3, st.Statements)
	assert.Equal(t, 1, st.Bad)
}

func TestParseLegacyStatement(t *testing.T) {
	stmt := `insert into preproff (text, options, correct_index, explanation, subject, topic, difficulty, block, college, year) VALUES ('Q?', '["x","y","z"]', 1, NULL, 'General', 'General', 'Medium', 'K', 'gmc', 2023)`
	r, repaired, err := ParseStatement(stmt)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "2023", r.Year)
	assert.Equal(t, "", r.Explanation)
	assert.Equal(t, []string{"x", "y", "z"}, r.Options)
}

func TestParseRepairsOptions(t *testing.T) {
	stmt := `INSERT INTO preproff (text, options, correct_index) VALUES ('Q', '[One, "Two", Three]', 0);`
	recs, st := Parse(stmt)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"One", "Two", "Three"}, recs[0].Options)
	assert.Equal(t, 1, st.OptionRepairs)
}

func TestParseStatementErrors(t *testing.T) {
	bad := []string{
		`DELETE FROM preproff`,
		`INSERT INTO preproff (text) VALUES ()`,
		`INSERT INTO preproff (text, options, correct_index) VALUES ('Q', '[]')`,
		`INSERT INTO preproff (text, options, correct_index) VALUES ('Q', '[]', x)`,
		`INSERT INTO preproff (text, options, correct_index) VALUES ('', '[]', 0)`,
		`INSERT INTO preproff (text, options, correct_index) VALUES ('Q', '[]', 0); junk`,
	}
	for _, s := range bad {
		_, _, err := ParseStatement(s)
		assert.Error(t, err, s)
	}
}

func TestUnbalancedQuoteDoesNotSwallowNextLine(t *testing.T) {
	text := "INSERT INTO preproff (text) VALUES ('it''s open\n" + Format(sample())
	recs, st := Parse(text)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, st.Bad)
}

func TestFileNames(t *testing.T) {
	p := question.Partition{College: "KMC", Block: "J"}
	assert.Equal(t, "kmc J.enc", FileName(p))
	assert.Equal(t, filepath.Join("out", "kmc J.enc"), PartitionPath("out", p))

	got, ok := PartitionFromPath("/x/kmc J.enc")
	require.True(t, ok)
	assert.Equal(t, question.Partition{College: "kmc", Block: "J"}, got)

	_, ok = PartitionFromPath("/x/readme.enc")
	assert.False(t, ok)
}

func TestWriteReadRoundTrip(t *testing.T) {
	c, err := codec.New("SUPERSIX_SECURE_KEY_2025")
	require.NoError(t, err)
	dir := t.TempDir()
	path := PartitionPath(dir, question.Partition{College: "kmc", Block: "J"})

	in := []question.Record{sample(), {Text: "Other", Options: []string{"p", "q"}, College: "kmc", Block: "J", Year: "2023"}}
	require.NoError(t, WritePartition(path, c, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "INSERT"), "file must not be plain text")

	out, st, err := ReadPartition(path, c)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 2, st.Statements)

	files, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files, "no temp files left behind")
}

func TestReadWithWrongKey(t *testing.T) {
	right, _ := codec.New("SUPERSIX_SECURE_KEY_2025")
	wrong, _ := codec.New("\xff")
	dir := t.TempDir()
	path := filepath.Join(dir, "kmc J.enc")
	require.NoError(t, WritePartition(path, right, []question.Record{sample()}))

	_, _, err := ReadPartition(path, wrong)
	var de *codec.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, path, de.Path)
}

func TestReadMissingFile(t *testing.T) {
	c, _ := codec.New("k")
	_, _, err := ReadPartition(filepath.Join(t.TempDir(), "none.enc"), c)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteIntoMissingDir(t *testing.T) {
	c, _ := codec.New("k")
	err := WritePartition(filepath.Join(t.TempDir(), "nope", "kmc J.enc"), c, nil)
	var we *WriteError
	assert.ErrorAs(t, err, &we)
}

func TestCheckRewrite(t *testing.T) {
	assert.NoError(t, CheckRewrite("kmc J.enc", ParseStats{Statements: 3}, false))
	assert.NoError(t, CheckRewrite("kmc J.enc", ParseStats{Statements: 3, Bad: 1}, true))

	err := CheckRewrite("kmc J.enc", ParseStats{Statements: 3, Bad: 2}, false)
	var ue *UnreadableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 2, ue.Bad)
	assert.Contains(t, err.Error(), "kmc J.enc")
}

func TestMove(t *testing.T) {
	src := []question.Record{
		{Text: "Anatomy of the heart", College: "kmc", Block: "J"},
		{Text: "Renal physiology", College: "kmc", Block: "J"},
		{Text: "Anatomy of the lung", College: "kmc", Block: "J"},
	}
	dst := []question.Record{{Text: "Existing", College: "kmc", Block: "K"}}
	to := question.Partition{College: "kmc", Block: "K"}

	newSrc, newDst, moved := Move(src, dst, to, func(r question.Record) bool {
		return strings.HasPrefix(r.Text, "Anatomy")
	})
	assert.Equal(t, 2, moved)
	assert.Len(t, newSrc, 1)
	require.Len(t, newDst, 3)
	assert.Equal(t, "Existing", newDst[0].Text)
	assert.Equal(t, "K", newDst[2].Block)
	assert.Equal(t, "J", src[0].Block, "input is not mutated")
}
