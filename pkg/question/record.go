package question

// Record is the canonical question as stored in a partition file.
type Record struct {
	Text         string
	Options      []string
	CorrectIndex int
	Explanation  string
	Subject      string
	Topic        string
	Difficulty   string
	Block        string
	College      string
	Year         string
}

// Partition identifies the store file a record belongs to.
type Partition struct {
	College string
	Block   string
}

// Partition returns the record's college/block pair.
func (r Record) Partition() Partition {
	return Partition{College: r.College, Block: r.Block}
}

func (p Partition) String() string {
	return p.College + " " + p.Block
}

// Valid reports whether the record satisfies the store invariants.
func (r Record) Valid() bool {
	return r.Text != "" && len(r.Options) > 0 && r.CorrectIndex >= 0 && r.CorrectIndex < len(r.Options)
}
