package question

import (
	"sort"
	"strings"
)

const (
	// DefaultDedupPrefix is the number of leading characters compared
	// within a partition.
	DefaultDedupPrefix = 100
	// CrossPrefix is the longer key used when comparing across partitions.
	CrossPrefix = 150
)

// DedupKey normalizes text for duplicate detection: whitespace runs collapse
// to one space, letters are lower-cased and the result is cut to n runes.
func DedupKey(text string, n int) string {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if n <= 0 {
		return key
	}
	r := []rune(key)
	if len(r) > n {
		return string(r[:n])
	}
	return key
}

func partitionKey(r Record) string {
	return strings.ToLower(r.College) + "\x00" + strings.ToLower(r.Block)
}

// Dedup keeps the first record for each (partition, DedupKey) pair and
// preserves input order. It returns the kept records and how many were dropped.
func Dedup(records []Record, n int) ([]Record, int) {
	seen := make(map[string]bool, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := partitionKey(r) + "\x00" + DedupKey(r.Text, n)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// Ref points at one record inside a partition.
type Ref struct {
	Partition Partition
	Index     int
	Year      string
}

// Duplicate is a question text found in more than one place.
type Duplicate struct {
	Key  string
	Refs []Ref
}

// FindDuplicates groups records by DedupKey. With cross set, only keys that
// span at least two partitions are returned; otherwise only keys repeated
// inside a single partition. Index is the position within the partition.
func FindDuplicates(records []Record, n int, cross bool) []Duplicate {
	byKey := make(map[string][]Ref)
	var order []string
	pos := make(map[Partition]int)
	for _, r := range records {
		p := r.Partition()
		k := DedupKey(r.Text, n)
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], Ref{Partition: p, Index: pos[p], Year: r.Year})
		pos[p]++
	}

	var out []Duplicate
	for _, k := range order {
		refs := byKey[k]
		if len(refs) < 2 {
			continue
		}
		parts := make(map[Partition]int)
		for _, ref := range refs {
			parts[ref.Partition]++
		}
		if cross && len(parts) > 1 {
			out = append(out, Duplicate{Key: k, Refs: refs})
		}
		if !cross {
			for p, c := range parts {
				if c < 2 {
					continue
				}
				var within []Ref
				for _, ref := range refs {
					if ref.Partition == p {
						within = append(within, ref)
					}
				}
				out = append(out, Duplicate{Key: k, Refs: within})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Refs[0].Partition.String() < out[j].Refs[0].Partition.String()
	})
	return out
}
