package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/supersix/qbank/pkg/codec"
	"github.com/supersix/qbank/pkg/question"
)

// Ext is the partition file extension.
const Ext = ".enc"

// WriteError wraps a failure to persist a partition file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// UnreadableError reports a partition that holds statements Parse could not
// read. Rewriting it from the parsed records would lose them.
type UnreadableError struct {
	Path string
	Bad  int
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("%s: %d unparseable statements would be dropped on rewrite", e.Path, e.Bad)
}

// CheckRewrite returns an *UnreadableError when st has bad statements,
// unless drop is set.
func CheckRewrite(path string, st ParseStats, drop bool) error {
	if st.Bad == 0 || drop {
		return nil
	}
	return &UnreadableError{Path: path, Bad: st.Bad}
}

// FileName returns the file name the front-end expects for p, e.g. "kmc J.enc".
func FileName(p question.Partition) string {
	return strings.ToLower(p.College) + " " + p.Block + Ext
}

// PartitionPath joins dir and FileName(p).
func PartitionPath(dir string, p question.Partition) string {
	return filepath.Join(dir, FileName(p))
}

// PartitionFromPath recovers the partition from a file name written by FileName.
func PartitionFromPath(path string) (question.Partition, bool) {
	name := strings.TrimSuffix(filepath.Base(path), Ext)
	college, block, ok := strings.Cut(name, " ")
	if !ok || college == "" || block == "" {
		return question.Partition{}, false
	}
	return question.Partition{College: college, Block: block}, true
}

// List returns the partition files in dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ReadText decodes a partition file to its SQL text.
func ReadText(path string, c *codec.Codec) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return c.DecodeText(path, data)
}

// ReadPartition decodes and parses a partition file.
func ReadPartition(path string, c *codec.Codec) ([]question.Record, ParseStats, error) {
	text, err := ReadText(path, c)
	if err != nil {
		return nil, ParseStats{}, err
	}
	recs, st := Parse(text)
	return recs, st, nil
}

// WritePartition replaces path with the encoded records. The data goes to a
// temporary file in the same directory which is then renamed over path.
func WritePartition(path string, c *codec.Codec, records []question.Record) error {
	return WriteText(path, c, FormatAll(records))
}

// WriteText encodes SQL text and atomically replaces path.
func WriteText(path string, c *codec.Codec, text string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if _, err := tmp.Write(c.EncodeText(text)); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Move transfers records of src that match into dst, reassigning them to
// the dst partition. Moved records are appended to dst in their src order.
func Move(src, dst []question.Record, to question.Partition, match func(question.Record) bool) (newSrc, newDst []question.Record, moved int) {
	newDst = append([]question.Record(nil), dst...)
	for _, r := range src {
		if !match(r) {
			newSrc = append(newSrc, r)
			continue
		}
		r.College = to.College
		r.Block = to.Block
		newDst = append(newDst, r)
		moved++
	}
	return newSrc, newDst, moved
}
