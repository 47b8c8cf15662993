package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supersix/qbank/pkg/audit"
	"github.com/supersix/qbank/pkg/db"
	"github.com/supersix/qbank/pkg/ingest"
	"github.com/supersix/qbank/pkg/question"
	"github.com/supersix/qbank/pkg/review"
	"github.com/supersix/qbank/pkg/store"
)

// errFindings makes audit --strict exit non-zero.
var errFindings = errors.New("audit found problems")

func newAuditCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report counts, malformed records and duplicates without changing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := audit.Dir(a.cfg.StoreDir, a.codec, audit.Options{
				MinOptions:    a.cfg.AuditMinOptions,
				SentinelYears: a.cfg.SentinelYears,
				DedupPrefix:   a.cfg.DedupPrefix,
			})
			if err != nil {
				return err
			}
			printAudit(cmd.OutOrStdout(), rep)
			if strict && !rep.Clean() {
				return errFindings
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when anything is flagged")
	return cmd
}

func printAudit(out io.Writer, rep audit.Report) {
	for _, p := range rep.Partitions {
		years := make([]string, 0, len(p.ByYear))
		for _, y := range p.Years() {
			label := y
			if label == "" {
				label = "(none)"
			}
			years = append(years, fmt.Sprintf("%s=%d", label, p.ByYear[y]))
		}
		fmt.Fprintf(out, "%s: %d questions [%s]\n", p.Partition, p.Total, strings.Join(years, " "))
		if p.Parse.Bad > 0 {
			fmt.Fprintf(out, "  %d unparseable statements\n", p.Parse.Bad)
		}
		if len(p.FewOptions) > 0 {
			fmt.Fprintf(out, "  few options: %v\n", p.FewOptions)
		}
		if len(p.BadIndex) > 0 {
			fmt.Fprintf(out, "  correct_index out of range: %v\n", p.BadIndex)
		}
		if len(p.Sentinel) > 0 {
			fmt.Fprintf(out, "  placeholder year: %v\n", p.Sentinel)
		}
		for _, d := range p.Duplicates {
			fmt.Fprintf(out, "  duplicate %q at %s\n", d.Key, refs(d.Refs))
		}
	}
	for _, d := range rep.Cross {
		fmt.Fprintf(out, "cross-partition duplicate %q at %s\n", d.Key, refs(d.Refs))
	}
	if rep.Clean() {
		fmt.Fprintln(out, "No problems found.")
	}
}

func refs(rs []question.Ref) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = fmt.Sprintf("%s#%d", r.Partition, r.Index)
	}
	return strings.Join(parts, ", ")
}

func newExportCmd(a *app) *cobra.Command {
	var dbPath string
	var batch int
	var verify bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Load every partition into a SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(dbPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Database initialized at %s\n", dbPath)

			rep, err := ingest.Export(cmd.Context(), conn, ingest.ExportConfig{
				StoreDir:  a.cfg.StoreDir,
				Codec:     a.codec,
				BatchSize: batch,
				Verify:    verify,
			}, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d questions from %d partitions (%d invalid, %d unparseable, %d rejected by sqlite)\n",
				rep.Questions, rep.Partitions, rep.Invalid, rep.BadStatements, rep.FailedStatements)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dbPath, "db", "qbank.db", "Path to SQLite database")
	f.IntVar(&batch, "batch-size", 100, "Rows per transaction")
	f.BoolVar(&verify, "verify", false, "Also execute the stored statements against the preproff table")
	return cmd
}

func newReviewCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "review [\"<college> <block>\"]...",
		Short: "Write stored partitions to an .xlsx workbook for proofreading",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.storeFiles(args)
			if err != nil {
				return err
			}
			var sheets []review.Sheet
			for _, path := range files {
				part, ok := store.PartitionFromPath(path)
				if !ok {
					continue
				}
				recs, _, err := store.ReadPartition(path, a.codec)
				if err != nil {
					return err
				}
				sheets = append(sheets, review.Sheet{Partition: part, Records: recs})
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := review.Write(f, sheets); err != nil {
				f.Close()
				os.Remove(outPath)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d sheets to %s\n", len(sheets), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "review.xlsx", "Workbook to write")
	cmd.AddCommand(newReviewApplyCmd(a))
	return cmd
}

func newReviewApplyCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply <review.xlsx>",
		Short: "Replace partitions with the contents of a corrected workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			sheets, rowErrs, err := review.Read(f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range rowErrs {
				fmt.Fprintln(out, e.Error())
			}
			if len(rowErrs) > 0 && !dryRun {
				return fmt.Errorf("%d rows could not be read; fix them or use --dry-run", len(rowErrs))
			}
			for _, s := range sheets {
				kept, removed := question.Dedup(s.Records, a.cfg.DedupPrefix)
				path := store.PartitionPath(a.cfg.StoreDir, s.Partition)
				fmt.Fprintf(out, "%s: %d questions (%d duplicates dropped)\n", s.Partition, len(kept), removed)
				if dryRun {
					continue
				}
				if err := store.WritePartition(path, a.codec, kept); err != nil {
					return err
				}
				a.log.Info("partition replaced from review", zap.String("path", path), zap.Int("questions", len(kept)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check the workbook without writing")
	return cmd
}
