package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supersix/qbank/pkg/question"
	"github.com/supersix/qbank/pkg/store"
)

func newDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <file.enc> [out.sql]",
		Short: "Decode a partition file to plain SQL",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := store.ReadText(args[0], a.codec)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				_, err := fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}
			if err := os.WriteFile(args[1], []byte(text), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decoded %s to %s (%d statements)\n", args[0], args[1], len(store.Split(text)))
			return nil
		},
	}
}

func newEncodeCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "encode <in.sql> <file.enc>",
		Short: "Encode plain SQL statements into a partition file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text := string(data)
			_, st := store.Parse(text)
			if st.Bad > 0 && !force {
				return fmt.Errorf("%s: %d of %d statements cannot be parsed (use --force to encode anyway)", args[0], st.Bad, st.Statements)
			}
			if err := store.WriteText(args[1], a.codec, text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Encoded %d statements into %s\n", st.Statements, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Encode even if some statements do not parse")
	return cmd
}

// storeFiles returns the partition files named by args, or every file in
// the store when args is empty.
func (a *app) storeFiles(args []string) ([]string, error) {
	parts, err := partitionsArg(args)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return store.List(a.cfg.StoreDir)
	}
	files := make([]string, len(parts))
	for i, p := range parts {
		files[i] = store.PartitionPath(a.cfg.StoreDir, p)
	}
	return files, nil
}

func newDedupCmd(a *app) *cobra.Command {
	var dryRun, dropBad bool
	cmd := &cobra.Command{
		Use:   "dedup [\"<college> <block>\"]...",
		Short: "Remove duplicate questions from stored partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.storeFiles(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			total := 0
			for _, path := range files {
				recs, st, err := store.ReadPartition(path, a.codec)
				if err != nil {
					return err
				}
				kept, removed := question.Dedup(recs, a.cfg.DedupPrefix)
				total += removed
				if removed == 0 {
					continue
				}
				fmt.Fprintf(out, "%s: %d duplicates, %d questions left\n", path, removed, len(kept))
				if dryRun {
					continue
				}
				if err := store.CheckRewrite(path, st, dropBad); err != nil {
					return err
				}
				if err := store.WritePartition(path, a.codec, kept); err != nil {
					return err
				}
				a.log.Info("partition deduplicated", zap.String("path", path), zap.Int("removed", removed))
			}
			if total == 0 {
				fmt.Fprintln(out, "No duplicates found.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report duplicates without rewriting files")
	cmd.Flags().BoolVar(&dropBad, "drop-unreadable", false, "Rewrite even if some statements cannot be parsed (they are lost)")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var from, to, match string
	var dryRun, dropBad bool
	cmd := &cobra.Command{
		Use:   "move --from \"<college> <block>\" --to \"<college> <block>\" --match <text>",
		Short: "Move questions whose text contains a phrase to another partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parsePartition(from)
			if err != nil {
				return err
			}
			dst, err := parsePartition(to)
			if err != nil {
				return err
			}
			if src == dst {
				return errors.New("--from and --to name the same partition")
			}
			needle := strings.ToLower(strings.TrimSpace(match))
			if needle == "" {
				return errors.New("--match must not be empty")
			}

			srcPath := store.PartitionPath(a.cfg.StoreDir, src)
			dstPath := store.PartitionPath(a.cfg.StoreDir, dst)
			srcRecs, srcStats, err := store.ReadPartition(srcPath, a.codec)
			if err != nil {
				return err
			}
			dstRecs, dstStats, err := store.ReadPartition(dstPath, a.codec)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			newSrc, newDst, moved := store.Move(srcRecs, dstRecs, dst, func(r question.Record) bool {
				return strings.Contains(strings.ToLower(r.Text), needle)
			})
			newDst, removed := question.Dedup(newDst, a.cfg.DedupPrefix)
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %d questions from %s to %s (%d duplicates dropped)\n", moved, src, dst, removed)
			if moved == 0 || dryRun {
				return nil
			}
			if err := store.CheckRewrite(srcPath, srcStats, dropBad); err != nil {
				return err
			}
			if err := store.CheckRewrite(dstPath, dstStats, dropBad); err != nil {
				return err
			}
			// Destination first: a failure then leaves a copy rather than a loss.
			if err := store.WritePartition(dstPath, a.codec, newDst); err != nil {
				return err
			}
			return store.WritePartition(srcPath, a.codec, newSrc)
		},
	}
	f := cmd.Flags()
	f.StringVar(&from, "from", "", "Source partition, e.g. \"kmc J\"")
	f.StringVar(&to, "to", "", "Destination partition")
	f.StringVar(&match, "match", "", "Case-insensitive phrase to look for in the question text")
	f.BoolVar(&dryRun, "dry-run", false, "Report without writing")
	f.BoolVar(&dropBad, "drop-unreadable", false, "Rewrite even if some statements cannot be parsed (they are lost)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("match")
	return cmd
}
