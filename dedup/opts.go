package dedup

import (
	"github.com/grailbio/base/errors"
)

// Opts configure a Deduper.  The zero value is not usable; start from
// DefaultOpts and override as needed.
type Opts struct {
	// KmerLen is the length in bases of the k-mers packed during minimizer
	// selection.
	KmerLen int
	// WindowLen is the width in bases of one minimizer window.
	WindowLen int
	// NumWindows is the number of contiguous windows placed from offset 0 of
	// each mate.  Bases past NumWindows*WindowLen never contribute a key; the
	// read start carries the more reliable bases.
	NumWindows int
	// MaxOffset is the largest alignment shift, in bases, tolerated between
	// two sequences compared for equivalence.
	MaxOffset int
	// MaxErrorFrac bounds |offset| + mismatches as a fraction of the overlap
	// length.  The shift itself is charged against this budget, so a
	// zero-overlap alignment can never match.
	MaxErrorFrac float64
	// ExpectedReads sizes the exemplar index up front.  The index never
	// resizes, so lookup cost degrades if the declared workload is far below
	// the real one.
	ExpectedReads int
	// ScratchArenaBytes caps the build-phase arena holding exemplar sequence
	// copies.  0 selects the 2 GiB default.
	ScratchArenaBytes int
	// ResultArenaBytes caps the arena backing the read mapping and cluster
	// records that survive Finalize.  0 selects the 512 MiB default.
	ResultArenaBytes int
}

// DefaultOpts mirror the production pipeline settings.
var DefaultOpts = Opts{
	KmerLen:       15,
	WindowLen:     25,
	NumWindows:    4,
	MaxOffset:     1,
	MaxErrorFrac:  0.01,
	ExpectedReads: 20 * 1000 * 1000,
}

func (o Opts) check() error {
	switch {
	case o.KmerLen <= 0:
		return errors.E("dedup: KmerLen must be positive")
	case o.WindowLen <= 0:
		return errors.E("dedup: WindowLen must be positive")
	case o.NumWindows <= 0:
		return errors.E("dedup: NumWindows must be positive")
	case o.MaxOffset < 0:
		return errors.E("dedup: MaxOffset must be >= 0")
	case o.MaxErrorFrac < 0 || o.MaxErrorFrac > 1:
		return errors.E("dedup: MaxErrorFrac must be in [0, 1]")
	case o.ExpectedReads <= 0:
		return errors.E("dedup: ExpectedReads must be positive")
	case o.ScratchArenaBytes < 0 || o.ResultArenaBytes < 0:
		return errors.E("dedup: arena sizes must be >= 0")
	}
	return nil
}
