package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supersix/qbank/pkg/question"
	"github.com/supersix/qbank/pkg/store"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// ErrRunExists is returned by StartRun when the run id is already recorded.
var ErrRunExists = errors.New("run already recorded")

// questionNamespace seeds the name-based ids of preproff_questions rows.
var questionNamespace = uuid.MustParse("6f1d3c2a-9b7e-4c55-8a0e-2d4b8f6a1c90")

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// QuestionID derives a stable row id from the partition and the normalized
// question text, so re-exporting the same question updates its row.
func QuestionID(r question.Record) string {
	name := strings.ToLower(r.College) + "|" + strings.ToUpper(r.Block) + "|" + question.DedupKey(r.Text, question.CrossPrefix)
	return uuid.NewSHA1(questionNamespace, []byte(name)).String()
}

// UpsertQuestion inserts r into preproff_questions, replacing the row with the
// same id, and returns the id.
func UpsertQuestion(db DBExecutor, r question.Record) (string, error) {
	if strings.TrimSpace(r.Text) == "" {
		return "", fmt.Errorf("question text must be non-empty")
	}
	if r.College == "" || r.Block == "" {
		return "", fmt.Errorf("question must have a college and block")
	}
	var id string
	err := db.QueryRow(`INSERT INTO preproff_questions (id, text, options, correct_index, explanation, subject, topic, difficulty, block, college, year)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  text = excluded.text,
		  options = excluded.options,
		  correct_index = excluded.correct_index,
		  explanation = excluded.explanation,
		  subject = excluded.subject,
		  topic = excluded.topic,
		  difficulty = excluded.difficulty,
		  year = excluded.year
		RETURNING id`,
		QuestionID(r), r.Text, store.OptionsJSON(r.Options), r.CorrectIndex, r.Explanation,
		r.Subject, r.Topic, r.Difficulty, r.Block, r.College, r.Year,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert question: %w", err)
	}
	return id, nil
}

// QuestionsByPartition returns the rows of one partition in insertion order.
func QuestionsByPartition(db DBExecutor, p question.Partition) ([]Question, error) {
	rows, err := db.Query(`SELECT id, text, options, correct_index, explanation, subject, topic, difficulty, block, college, year
		FROM preproff_questions WHERE college = ? AND block = ? ORDER BY rowid`, p.College, p.Block)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		var opts string
		var expl, subj, topic, diff, year sql.NullString
		if err := rows.Scan(&q.ID, &q.Text, &opts, &q.CorrectIndex, &expl, &subj, &topic, &diff, &q.Block, &q.College, &year); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("question %s: options: %w", q.ID, err)
		}
		q.Explanation = expl.String
		q.Subject = subj.String
		q.Topic = topic.String
		q.Difficulty = diff.String
		q.Year = year.String
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByYear returns the number of questions per year in one partition.
func CountByYear(db DBExecutor, p question.Partition) (map[string]int, error) {
	rows, err := db.Query(`SELECT IFNULL(year, ''), COUNT(*) FROM preproff_questions WHERE college = ? AND block = ? GROUP BY 1`, p.College, p.Block)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var year string
		var n int
		if err := rows.Scan(&year, &n); err != nil {
			return nil, err
		}
		out[year] = n
	}
	return out, rows.Err()
}

// DeletePartition removes every row of p and reports how many were deleted.
func DeletePartition(db DBExecutor, p question.Partition) (int64, error) {
	res, err := db.Exec(`DELETE FROM preproff_questions WHERE college = ? AND block = ?`, p.College, p.Block)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetStatements empties the preproff mirror table.
func ResetStatements(db DBExecutor) error {
	_, err := db.Exec(`DELETE FROM preproff`)
	return err
}

// ExecStatements runs raw store statements against the preproff table. It
// keeps going after a failure and returns the first error.
func ExecStatements(db DBExecutor, stmts []string) (ok, failed int, err error) {
	for i, s := range stmts {
		if _, e := db.Exec(s); e != nil {
			failed++
			if err == nil {
				err = fmt.Errorf("statement %d: %w", i, e)
			}
			continue
		}
		ok++
	}
	return ok, failed, err
}

// StartRun records the beginning of an export run.
func StartRun(db DBExecutor, id string, at time.Time) error {
	if _, err := db.Exec(`INSERT INTO import_runs (id, started_at) VALUES (?, ?)`, id, at); err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%s: %w", id, ErrRunExists)
		}
		return err
	}
	return nil
}

// FinishRun stores the totals of a run started with StartRun.
func FinishRun(db DBExecutor, r Run) error {
	res, err := db.Exec(`UPDATE import_runs SET finished_at = ?, partitions = ?, questions = ?, failed = ? WHERE id = ?`,
		r.FinishedAt, r.Partitions, r.Questions, r.Failed, r.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetRun loads a run by id.
func GetRun(db DBExecutor, id string) (Run, error) {
	var r Run
	var finished sql.NullTime
	err := db.QueryRow(`SELECT id, started_at, finished_at, partitions, questions, failed FROM import_runs WHERE id = ?`, id).
		Scan(&r.ID, &r.StartedAt, &finished, &r.Partitions, &r.Questions, &r.Failed)
	if err != nil {
		return Run{}, err
	}
	r.FinishedAt = finished.Time
	return r, nil
}
