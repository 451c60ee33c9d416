package dedup

// Stats summarize one engine's run.
type Stats struct {
	// ReadsProcessed is the number of ProcessRead calls accepted during
	// Pass 1.
	ReadsProcessed int
	// UniqueClusters is the number of distinct initial exemplars ever
	// created.  Representative promotion within a cluster does not change
	// it.
	UniqueClusters int
	// ScratchBytesUsed is the build-phase arena consumption; it reads 0 once
	// Finalize has released the scratch arena.
	ScratchBytesUsed int
	// ResultBytesUsed is the consumption of the arena backing the read
	// mapping and cluster records.
	ResultBytesUsed int
}

// Merge adds the field values of the two Stats objects and creates new
// Stats.  Use it to combine engines run one per input shard.
func (s Stats) Merge(o Stats) Stats {
	s.ReadsProcessed += o.ReadsProcessed
	s.UniqueClusters += o.UniqueClusters
	s.ScratchBytesUsed += o.ScratchBytesUsed
	s.ResultBytesUsed += o.ResultBytesUsed
	return s
}
