// Package audit inspects stored partitions without modifying them.
package audit

import (
	"sort"
	"strings"

	"github.com/supersix/qbank/pkg/codec"
	"github.com/supersix/qbank/pkg/question"
	"github.com/supersix/qbank/pkg/store"
)

// Options tunes what counts as a finding.
type Options struct {
	// MinOptions flags records with fewer options. 0 disables the check.
	MinOptions    int
	SentinelYears []string
	// DedupPrefix is the key length for within-partition duplicates;
	// cross-partition duplicates always use question.CrossPrefix.
	DedupPrefix int
}

// Input is one partition to audit.
type Input struct {
	Partition question.Partition
	Path      string
	Records   []question.Record
	Parse     store.ParseStats
}

// Partition holds the findings for one partition. Index fields are record
// positions within the partition.
type Partition struct {
	Partition  question.Partition
	Path       string
	Total      int
	ByYear     map[string]int
	FewOptions []int
	BadIndex   []int
	Sentinel   []int
	Duplicates []question.Duplicate
	Parse      store.ParseStats
}

// Findings counts everything flagged in p.
func (p Partition) Findings() int {
	n := len(p.FewOptions) + len(p.BadIndex) + len(p.Sentinel) + p.Parse.Bad
	for _, d := range p.Duplicates {
		n += len(d.Refs) - 1
	}
	return n
}

// Years returns the ByYear keys in order.
func (p Partition) Years() []string {
	ys := make([]string, 0, len(p.ByYear))
	for y := range p.ByYear {
		ys = append(ys, y)
	}
	sort.Strings(ys)
	return ys
}

// Report is the result of an audit.
type Report struct {
	Partitions []Partition
	Cross      []question.Duplicate
}

// Clean reports whether nothing was flagged.
func (r Report) Clean() bool {
	if len(r.Cross) > 0 {
		return false
	}
	for _, p := range r.Partitions {
		if p.Findings() > 0 {
			return false
		}
	}
	return true
}

// Run audits the inputs.
func Run(inputs []Input, opts Options) Report {
	if opts.DedupPrefix <= 0 {
		opts.DedupPrefix = question.DefaultDedupPrefix
	}
	sentinel := make(map[string]bool, len(opts.SentinelYears))
	for _, y := range opts.SentinelYears {
		sentinel[strings.ToLower(strings.TrimSpace(y))] = true
	}

	var rep Report
	var all []question.Record
	for _, in := range inputs {
		p := Partition{
			Partition: in.Partition,
			Path:      in.Path,
			Total:     len(in.Records),
			ByYear:    make(map[string]int),
			Parse:     in.Parse,
		}
		recs := make([]question.Record, len(in.Records))
		for i, r := range in.Records {
			p.ByYear[r.Year]++
			if opts.MinOptions > 0 && len(r.Options) < opts.MinOptions {
				p.FewOptions = append(p.FewOptions, i)
			}
			if !r.Valid() {
				p.BadIndex = append(p.BadIndex, i)
			}
			if sentinel[strings.ToLower(strings.TrimSpace(r.Year))] {
				p.Sentinel = append(p.Sentinel, i)
			}
			// Duplicates are grouped by the file's partition, whatever the
			// records claim.
			r.College, r.Block = in.Partition.College, in.Partition.Block
			recs[i] = r
		}
		p.Duplicates = question.FindDuplicates(recs, opts.DedupPrefix, false)
		rep.Partitions = append(rep.Partitions, p)
		all = append(all, recs...)
	}
	rep.Cross = question.FindDuplicates(all, question.CrossPrefix, true)
	return rep
}

// Dir reads and audits every partition file in dir.
func Dir(dir string, c *codec.Codec, opts Options) (Report, error) {
	files, err := store.List(dir)
	if err != nil {
		return Report{}, err
	}
	var inputs []Input
	for _, path := range files {
		part, ok := store.PartitionFromPath(path)
		if !ok {
			continue
		}
		recs, st, err := store.ReadPartition(path, c)
		if err != nil {
			return Report{}, err
		}
		inputs = append(inputs, Input{Partition: part, Path: path, Records: recs, Parse: st})
	}
	return Run(inputs, opts), nil
}
