package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supersix/qbank/pkg/ingest"
)

func newBuildCmd(a *app) *cobra.Command {
	var (
		college, block, only string
		subject, topic, diff string
		fallbackYear         string
		dryRun, dropBad      bool
	)
	cmd := &cobra.Command{
		Use:   "build <source>...",
		Short: "Extract questions from raw exports and merge them into the store",
		Long: `build reads raw exports (JSON dumps, markdown, saved HTML pages or URLs),
recovers every question object it can, normalizes them and merges them into
the partition files. Existing questions are kept and duplicates dropped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.cfg.Policy()
			if err != nil {
				return err
			}
			policy.College = strings.ToLower(strings.TrimSpace(college))
			policy.Block = strings.ToUpper(strings.TrimSpace(block))
			if subject != "" {
				policy.Subject = subject
			}
			if topic != "" {
				policy.Topic = topic
			}
			if diff != "" {
				policy.Difficulty = diff
			}
			if fallbackYear != "" {
				policy.FallbackYear = fallbackYear
			}

			pcfg := ingest.PipelineConfig{
				StoreDir:       a.cfg.StoreDir,
				Codec:          a.codec,
				Policy:         policy,
				DedupPrefix:    a.cfg.DedupPrefix,
				Workers:        a.cfg.Workers,
				DryRun:         dryRun,
				DropUnreadable: dropBad,
			}
			if only != "" {
				part, err := parsePartition(only)
				if err != nil {
					return err
				}
				pcfg.Only = &part
			}
			p, err := ingest.NewPipeline(pcfg, a.log)
			if err != nil {
				return err
			}
			rep, err := p.Run(cmd.Context(), args)
			if err != nil {
				return err
			}
			printBuildReport(cmd, rep)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&college, "college", "", "Assign every question to this college")
	f.StringVar(&block, "block", "", "Assign every question to this block")
	f.StringVar(&only, "only", "", "Only write this partition, e.g. \"kmc J\"")
	f.StringVar(&subject, "subject", "", "Subject for every question")
	f.StringVar(&topic, "topic", "", "Topic for every question")
	f.StringVar(&diff, "difficulty", "", "Difficulty label (default from config)")
	f.StringVar(&fallbackYear, "year-fallback", "", "Replace sentinel years with this year")
	f.BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	f.BoolVar(&dropBad, "drop-unreadable", false, "Rewrite partitions even if some stored statements cannot be parsed (they are lost)")
	return cmd
}

func printBuildReport(cmd *cobra.Command, rep ingest.Report) {
	out := cmd.OutOrStdout()
	for _, s := range rep.Sources {
		fmt.Fprintf(out, "%s: %d candidates, %d rejected spans", s.Path, s.Candidates, s.Rejected)
		if s.Incomplete > 0 {
			fmt.Fprintf(out, " (%d incomplete)", s.Incomplete)
		}
		fmt.Fprintln(out)
	}
	st := rep.Normalize
	fmt.Fprintf(out, "Normalized %d questions (%d missing fields, %d too few options, %d answer fallbacks, %d fixups)\n",
		st.Accepted, st.MissingFields, st.TooFewOptions, st.AnswerFallbacks, st.Fixups)
	if rep.Filtered > 0 {
		fmt.Fprintf(out, "Skipped %d questions outside the selected partition\n", rep.Filtered)
	}
	verb := "wrote"
	if rep.DryRun {
		verb = "would write"
	}
	for _, pr := range rep.Partitions {
		fmt.Fprintf(out, "%-12s %s %d questions (+%d new, %d duplicates)\n",
			pr.Partition, verb, pr.Written, pr.Added(), pr.Duplicates)
	}
	if len(rep.Partitions) == 0 {
		fmt.Fprintln(out, "No partitions changed.")
	}
}
