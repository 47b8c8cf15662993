package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supersix/qbank/pkg/codec"
	"github.com/supersix/qbank/pkg/db"
	"github.com/supersix/qbank/pkg/question"
	"github.com/supersix/qbank/pkg/store"
)

// ExportConfig controls an export of the store into SQLite.
type ExportConfig struct {
	StoreDir  string
	Codec     *codec.Codec
	BatchSize int
	// Verify also executes every stored statement against the preproff
	// table and counts the ones SQLite rejects.
	Verify bool
}

// ExportReport summarizes an export.
type ExportReport struct {
	RunID            string
	Partitions       int
	Questions        int
	Invalid          int
	BadStatements    int
	FailedStatements int
}

// Export loads every partition file under cfg.StoreDir into the
// preproff_questions table. Each partition replaces its previous rows.
func Export(ctx context.Context, conn *sql.DB, cfg ExportConfig, logger *zap.Logger) (ExportReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Codec == nil {
		return ExportReport{}, errors.New("export: codec is required")
	}
	rep := ExportReport{RunID: uuid.NewString()}
	log := logger.With(zap.String("run_id", rep.RunID))

	files, err := store.List(cfg.StoreDir)
	if err != nil {
		return rep, fmt.Errorf("list store: %w", err)
	}
	if err := db.StartRun(conn, rep.RunID, time.Now().UTC()); err != nil {
		return rep, err
	}
	if cfg.Verify {
		if err := db.ResetStatements(conn); err != nil {
			return rep, fmt.Errorf("reset statements: %w", err)
		}
	}

	bw := NewBatchWriter(conn, cfg.BatchSize, 0)
	bw.OnError = func(err error) {
		log.Error("export batch failed", zap.Error(err))
	}

	runErr := func() error {
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			part, ok := store.PartitionFromPath(path)
			if !ok {
				log.Warn("skipping file with unexpected name", zap.String("path", path))
				continue
			}
			text, err := store.ReadText(path, cfg.Codec)
			if err != nil {
				return err
			}
			if cfg.Verify {
				_, failed, err := db.ExecStatements(conn, store.Split(text))
				rep.FailedStatements += failed
				if err != nil {
					log.Warn("stored statements rejected by sqlite", zap.String("path", path), zap.Int("failed", failed), zap.Error(err))
				}
			}
			recs, st := store.Parse(text)
			rep.BadStatements += st.Bad

			if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
				_, err := db.DeletePartition(tx, part)
				return err
			}); err != nil {
				return err
			}
			for _, r := range recs {
				if r.College == "" {
					r.College = part.College
				}
				if r.Block == "" {
					r.Block = part.Block
				}
				if !r.Valid() {
					rep.Invalid++
					continue
				}
				rec := r
				if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
					_, err := db.UpsertQuestion(tx, rec)
					return err
				}); err != nil {
					return err
				}
				rep.Questions++
			}
			rep.Partitions++
			log.Debug("partition queued", zap.Stringer("partition", part), zap.Int("questions", len(recs)))
		}
		return nil
	}()

	if err := bw.Close(); err != nil && runErr == nil {
		runErr = err
	}
	finish := db.Run{
		ID:         rep.RunID,
		FinishedAt: time.Now().UTC(),
		Partitions: rep.Partitions,
		Questions:  rep.Questions,
		Failed:     rep.FailedStatements + rep.BadStatements,
	}
	if err := db.FinishRun(conn, finish); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return rep, runErr
	}
	log.Info("export finished", zap.Int("partitions", rep.Partitions), zap.Int("questions", rep.Questions))
	return rep, nil
}

// ImportPartition reads one partition back from SQLite, in export order.
func ImportPartition(conn *sql.DB, part question.Partition) ([]question.Record, error) {
	rows, err := db.QuestionsByPartition(conn, part)
	if err != nil {
		return nil, err
	}
	out := make([]question.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record
	}
	return out, nil
}
