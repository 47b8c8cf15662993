// Package ingest drives a build run: raw sources are loaded and extracted in
// parallel, normalized in source order, merged into the existing partition
// files, deduplicated and written back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supersix/qbank/pkg/codec"
	"github.com/supersix/qbank/pkg/extract"
	"github.com/supersix/qbank/pkg/question"
	"github.com/supersix/qbank/pkg/source"
	"github.com/supersix/qbank/pkg/store"
)

// PipelineConfig holds everything a build run needs.
type PipelineConfig struct {
	StoreDir    string
	Codec       *codec.Codec
	Policy      question.Policy
	DedupPrefix int
	Workers     int

	// Only, when set, restricts writes to one partition; records routed
	// elsewhere are counted in Report.Filtered.
	Only *question.Partition
	// DryRun computes the report without touching the store.
	DryRun bool
	// DropUnreadable allows rewriting partitions that hold unparseable
	// statements, which are then lost. Otherwise such a partition aborts
	// the run before it is written.
	DropUnreadable bool

	// Load reads a source file or URL. Defaults to source.Load.
	Load func(ctx context.Context, path string) (string, error)
	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// SourceReport summarizes extraction of one source file.
type SourceReport struct {
	Path       string
	Candidates int
	Rejected   int
	Incomplete int
	Skipped    int
}

// PartitionReport summarizes one partition write.
type PartitionReport struct {
	Partition  question.Partition
	Path       string
	Existing   int
	Incoming   int
	Duplicates int
	Written    int
	// Unreadable counts existing statements that could not be parsed. The
	// partition is only rewritten without them under DropUnreadable.
	Unreadable int
}

// Added is the number of new questions the write contributed.
func (r PartitionReport) Added() int { return r.Written - r.Existing }

// Report is the result of Pipeline.Run.
type Report struct {
	RunID      string
	DryRun     bool
	Sources    []SourceReport
	Normalize  question.Stats
	Filtered   int
	Partitions []PartitionReport
}

// Pipeline runs builds with a fixed configuration.
type Pipeline struct {
	cfg  PipelineConfig
	ext  *extract.Extractor
	norm *question.Normalizer
	log  *zap.Logger
}

// NewPipeline validates cfg. A nil logger disables logging.
func NewPipeline(cfg PipelineConfig, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Codec == nil {
		return nil, errors.New("pipeline: codec is required")
	}
	if cfg.StoreDir == "" && !cfg.DryRun {
		return nil, errors.New("pipeline: store directory is required")
	}
	if cfg.DedupPrefix <= 0 {
		cfg.DedupPrefix = question.DefaultDedupPrefix
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Load == nil {
		cfg.Load = source.Load
	}
	norm, err := question.NewNormalizer(cfg.Policy, logger.Named("normalize"))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		cfg:  cfg,
		ext:  extract.New(extract.WithLogger(logger.Named("extract"))),
		norm: norm,
		log:  logger,
	}, nil
}

// extracted holds the result of processing one source before normalization.
type extracted struct {
	Index  int
	Path   string
	Result extract.Result
	Err    error
}

// Run processes sources in order. Extraction and normalization problems are
// counted in the report; load, decode and write failures abort the run.
// Partitions already written when a later partition fails stay written.
func (p *Pipeline) Run(ctx context.Context, sources []string) (Report, error) {
	rep := Report{RunID: uuid.NewString(), DryRun: p.cfg.DryRun}
	log := p.log.With(zap.String("run_id", rep.RunID))
	log.Info("build started", zap.Int("sources", len(sources)), zap.Bool("dry_run", p.cfg.DryRun))

	results, err := p.extractAll(ctx, sources)
	if err != nil {
		return rep, err
	}

	var cands []extract.Candidate
	for _, r := range results {
		rep.Sources = append(rep.Sources, SourceReport{
			Path:       r.Path,
			Candidates: len(r.Result.Candidates),
			Rejected:   r.Result.Rejected,
			Incomplete: r.Result.Incomplete,
			Skipped:    r.Result.Skipped,
		})
		if r.Result.Rejected > 0 {
			log.Warn("rejected spans in source",
				zap.String("path", r.Path),
				zap.Int("rejected", r.Result.Rejected),
				zap.Int("incomplete", r.Result.Incomplete))
		}
		cands = append(cands, r.Result.Candidates...)
	}

	recs, st := p.norm.NormalizeAll(cands)
	rep.Normalize = st

	groups := make(map[question.Partition][]question.Record)
	for _, r := range recs {
		part := r.Partition()
		if part.College == "" || part.Block == "" {
			rep.Filtered++
			log.Warn("record has no partition", zap.String("college", part.College), zap.String("block", part.Block))
			continue
		}
		if p.cfg.Only != nil && part != *p.cfg.Only {
			rep.Filtered++
			continue
		}
		groups[part] = append(groups[part], r)
	}
	parts := make([]question.Partition, 0, len(groups))
	for part := range groups {
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].String() < parts[j].String() })

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		pr, err := p.writePartition(part, groups[part], log)
		if err != nil {
			return rep, err
		}
		rep.Partitions = append(rep.Partitions, pr)
	}
	log.Info("build finished",
		zap.Int("accepted", st.Accepted),
		zap.Int("partitions", len(rep.Partitions)),
		zap.Int("filtered", rep.Filtered))
	return rep, nil
}

// extractAll loads and extracts every source on the worker pool and returns
// the results in source order.
func (p *Pipeline) extractAll(ctx context.Context, paths []string) ([]extracted, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wp WorkerPoolInterface
	if p.cfg.PoolFactory != nil {
		wp = p.cfg.PoolFactory(p.cfg.Workers, p.cfg.Workers*2)
	} else {
		wp = NewWorkerPool(p.cfg.Workers, p.cfg.Workers*2)
	}
	// Sized for every source so workers never block on send.
	resultCh := make(chan extracted, len(paths))
	wp.Start(ctx)

	var submitErr error
	submitted := 0
	for i, path := range paths {
		i, path := i, path
		job := func(ctx context.Context) error {
			text, err := p.cfg.Load(ctx, path)
			if err != nil {
				resultCh <- extracted{Index: i, Path: path, Err: err}
				return err
			}
			resultCh <- extracted{Index: i, Path: path, Result: p.ext.Extract(text)}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			submitErr = err
			break
		}
		submitted++
	}
	if submitErr != nil {
		cancel()
	}
	wp.Close()
	close(resultCh)
	if submitErr != nil {
		return nil, fmt.Errorf("submit source: %w", submitErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buffer := make(map[int]extracted, submitted)
	for r := range resultCh {
		buffer[r.Index] = r
	}
	out := make([]extracted, 0, submitted)
	for next := 0; next < submitted; next++ {
		r, ok := buffer[next]
		if !ok {
			return nil, fmt.Errorf("source %s was not processed", paths[next])
		}
		if r.Err != nil {
			return nil, fmt.Errorf("load source: %w", r.Err)
		}
		out = append(out, r)
	}
	return out, nil
}

// writePartition merges incoming after the records already stored for part,
// deduplicates and writes the result.
func (p *Pipeline) writePartition(part question.Partition, incoming []question.Record, log *zap.Logger) (PartitionReport, error) {
	pr := PartitionReport{Partition: part, Incoming: len(incoming)}
	if p.cfg.StoreDir != "" {
		pr.Path = store.PartitionPath(p.cfg.StoreDir, part)
	}

	var existing []question.Record
	if pr.Path != "" {
		recs, st, err := store.ReadPartition(pr.Path, p.cfg.Codec)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return pr, fmt.Errorf("read partition %s: %w", part, err)
		default:
			existing = recs
			pr.Unreadable = st.Bad
			if st.Bad > 0 {
				log.Warn("unparseable statements in partition", zap.String("path", pr.Path), zap.Int("bad", st.Bad))
			}
		}
	}
	pr.Existing = len(existing)

	merged := append(append([]question.Record(nil), existing...), incoming...)
	kept, removed := question.Dedup(merged, p.cfg.DedupPrefix)
	pr.Duplicates = removed
	pr.Written = len(kept)
	log.Debug("partition merged",
		zap.Stringer("partition", part),
		zap.Int("existing", pr.Existing),
		zap.Int("incoming", pr.Incoming),
		zap.Int("duplicates", removed))

	if p.cfg.DryRun || pr.Path == "" {
		return pr, nil
	}
	if err := store.CheckRewrite(pr.Path, store.ParseStats{Bad: pr.Unreadable}, p.cfg.DropUnreadable); err != nil {
		return pr, err
	}
	if err := store.WritePartition(pr.Path, p.cfg.Codec, kept); err != nil {
		return pr, err
	}
	log.Info("partition written", zap.String("path", pr.Path), zap.Int("questions", pr.Written), zap.Int("added", pr.Added()))
	return pr, nil
}
