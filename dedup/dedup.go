package dedup

import (
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
)

type engineState int

const (
	stateBuilding engineState = iota
	stateFinalized
	stateClosed
)

// Deduper clusters read pairs by sequence similarity and selects a
// quality-weighted representative per cluster.  See the package comment
// for the two-pass lifecycle.
//
// A Deduper is not safe for concurrent use.  Calls outside the current
// phase are safe no-ops that return the permissive default (the argument
// id); they never corrupt state.
type Deduper struct {
	opts Opts

	scratch *arena // exemplar copies; released at Finalize
	result  *arena // mapping and registry strings; survives Finalize

	index    *exemplarIndex
	clusters clusterRegistry
	mapping  readMapping

	state engineState
	reads int

	keys []uint64 // reusable per-read minimizer key buffer
}

// NewDeduper validates opts and allocates both arenas and all tables.
// Failures are ordinary errors: no Deduper is produced and the caller may
// retry with different sizing.
func NewDeduper(opts Opts) (*Deduper, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	scratchBytes := opts.ScratchArenaBytes
	if scratchBytes == 0 {
		scratchBytes = defaultScratchBytes
	}
	resultBytes := opts.ResultArenaBytes
	if resultBytes == 0 {
		resultBytes = defaultResultBytes
	}
	scratch, err := newMmapArena(scratchBytes)
	if err != nil {
		return nil, err
	}
	return &Deduper{
		opts:     opts,
		scratch:  scratch,
		result:   newHeapArena(resultBytes),
		index:    newExemplarIndex(tableSizeFor(opts.ExpectedReads)),
		clusters: make(clusterRegistry),
		mapping:  make(readMapping),
		keys:     make([]uint64, 0, 2*opts.NumWindows),
	}, nil
}

// ProcessRead assigns one read pair to a cluster and returns the cluster's
// initial exemplar id (the read's own id when it founds a new cluster).
// Valid only while Building; after Finalize it is a no-op that returns a
// copy of readID.
//
// All slices carry explicit lengths and are borrowed only for the duration
// of the call; whatever the engine retains is copied into arena storage.
// Quality slices may be empty.  The returned string stays valid even after
// Close.
func (d *Deduper) ProcessRead(readID, fwdSeq, revSeq, fwdQual, revQual []byte) string {
	if d == nil || d.state != stateBuilding {
		return string(readID)
	}
	d.reads++

	score := readScore(len(fwdSeq), len(revSeq), fwdQual, revQual)
	fwd := gunsafe.BytesToString(fwdSeq)
	rev := gunsafe.BytesToString(revSeq)
	d.keys = appendMinimizerKeys(d.keys[:0], fwd, rev,
		d.opts.KmerLen, d.opts.WindowLen, d.opts.NumWindows)

	if len(d.keys) > 0 {
		if ex := d.index.findMatch(d.keys, fwd, rev, d.opts.MaxOffset, d.opts.MaxErrorFrac); ex != nil {
			stats := d.clusterFor(ex.id)
			stats.count++
			if score > stats.bestScore {
				stats.bestScore = score
				stats.bestReadID = d.internResult(readID)
			}
			d.mapping[d.internResult(readID)] = stats.key
			return stats.key
		}
	}

	// First of its cluster: record it under its own id and, when it has
	// usable keys, publish it as a match candidate.
	id := d.internResult(readID)
	d.clusters[id] = &clusterStats{key: id, bestReadID: id, bestScore: score, count: 1}
	d.mapping[id] = id
	if len(d.keys) > 0 {
		ex := &exemplarRecord{
			id:  d.internScratch(readID),
			fwd: d.internScratch(fwdSeq),
			rev: d.internScratch(revSeq),
		}
		for i, key := range d.keys {
			if keySeen(d.keys[:i], key) {
				continue
			}
			d.index.insert(key, ex)
		}
	}
	return id
}

// Finalize ends Pass 1: the exemplar index and the scratch arena are
// released, leaving only the read mapping and the cluster registry.
// Irreversible; a no-op unless the engine is Building.
func (d *Deduper) Finalize() {
	if d == nil || d.state != stateBuilding {
		return
	}
	log.Debug.Printf("dedup: finalizing after %d reads, %d clusters, releasing %d scratch bytes",
		d.reads, len(d.clusters), d.scratch.bytesUsed())
	d.index = nil
	d.scratch.release()
	d.state = stateFinalized
}

// FinalExemplar resolves readID to the best representative of its cluster:
// the read mapping names the initial exemplar, whose registry entry names
// the current best member.  Ids the engine never saw resolve to
// themselves, as do all calls made before Finalize.
func (d *Deduper) FinalExemplar(readID string) string {
	if d == nil || d.state != stateFinalized {
		return readID
	}
	initial, ok := d.mapping[readID]
	if !ok {
		return readID
	}
	if stats, ok := d.clusters[initial]; ok {
		return stats.bestReadID
	}
	return initial
}

// Stats is valid in any state.  After Close it reports zeroes.
func (d *Deduper) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	s := Stats{
		ReadsProcessed: d.reads,
		UniqueClusters: len(d.clusters),
	}
	if d.scratch != nil {
		s.ScratchBytesUsed = d.scratch.bytesUsed()
	}
	if d.result != nil {
		s.ResultBytesUsed = d.result.bytesUsed()
	}
	return s
}

// Close releases all engine memory.  Valid in any state and idempotent.
// Strings previously returned by ProcessRead and FinalExemplar remain
// valid: they are backed by heap storage that outlives the engine.
func (d *Deduper) Close() {
	if d == nil || d.state == stateClosed {
		return
	}
	d.scratch.release()
	d.index = nil
	d.clusters = nil
	d.mapping = nil
	d.result = nil
	d.reads = 0
	d.state = stateClosed
}

// internResult copies b into the result arena and returns it as a string.
func (d *Deduper) internResult(b []byte) string {
	c := d.result.copyBytes(b)
	if c == nil {
		d.fatalArena("result", d.result, len(b))
	}
	return gunsafe.BytesToString(c)
}

func (d *Deduper) internResultString(s string) string {
	return d.internResult(gunsafe.StringToBytes(s))
}

// internScratch copies b into the scratch arena and returns it as a
// string valid only until Finalize.
func (d *Deduper) internScratch(b []byte) string {
	c := d.scratch.copyBytes(b)
	if c == nil {
		d.fatalArena("scratch", d.scratch, len(b))
	}
	return gunsafe.BytesToString(c)
}

// fatalArena terminates the process.  Once a read's bytes cannot be
// durably recorded, continuing would silently undercount duplicates, which
// is a worse outcome for a batch pipeline than a loud stop.
func (d *Deduper) fatalArena(name string, a *arena, n int) {
	log.Fatalf("dedup: %s arena exhausted allocating %d bytes (%d of %d used); rerun with a larger %s arena",
		name, n, a.bytesUsed(), a.capacity(), name)
}
