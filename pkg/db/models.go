package db

import (
	"time"

	"github.com/supersix/qbank/pkg/question"
)

// Question is a row of preproff_questions.
type Question struct {
	ID string
	question.Record
}

// Run is a row of import_runs, one per export.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Partitions int
	Questions  int
	Failed     int
}
