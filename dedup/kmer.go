package dedup

import (
	"math"
)

// Minimizer keys are 2-bit-per-base packed k-mers (A=0, C=1, G=2, T=3).
// Key 0 is the sentinel for "no valid minimizer": a window that starts past
// the sequence end, or whose every k-mer touches a non-ACGT byte.  A valid
// all-A k-mer would also pack to 0, so it is remapped to 1 to keep it
// distinguishable from the sentinel.

const invalidBaseBits = uint8(255)

var baseBits [256]uint8

func init() {
	for i := range baseBits {
		baseBits[i] = invalidBaseBits
	}
	baseBits['A'] = 0
	baseBits['a'] = 0
	baseBits['C'] = 1
	baseBits['c'] = 1
	baseBits['G'] = 2
	baseBits['g'] = 2
	baseBits['T'] = 3
	baseBits['t'] = 3
}

// packKmer packs the k bases of seq starting at start.  It returns the
// sentinel 0 when the k-mer runs past the sequence end or contains a
// non-ACGT byte.
func packKmer(seq string, start, k int) uint64 {
	if start+k > len(seq) {
		return 0
	}
	var key uint64
	for i := start; i < start+k; i++ {
		b := baseBits[seq[i]]
		if b == invalidBaseBits {
			return 0
		}
		key = key<<2 | uint64(b)
	}
	if key == 0 {
		return 1
	}
	return key
}

// windowMinimizer returns the numerically smallest valid k-mer of window w,
// where window w covers bases [w*windowLen, (w+1)*windowLen), or the
// sentinel 0 when the window holds no valid k-mer.
func windowMinimizer(seq string, w, k, windowLen int) uint64 {
	start := w * windowLen
	if start+k > len(seq) {
		return 0
	}
	limit := start + windowLen - k
	if limit > len(seq)-k {
		limit = len(seq) - k
	}
	min := uint64(math.MaxUint64)
	for i := start; i <= limit; i++ {
		if key := packKmer(seq, i, k); key != 0 && key < min {
			min = key
		}
	}
	if min == math.MaxUint64 {
		return 0
	}
	return min
}

// appendMinimizerKeys appends the valid window minimizers of both mates to
// keys and returns the extended slice.  A read pair yields at most
// 2*numWindows keys; a pair that yields none cannot be bucketed and always
// founds its own cluster.
func appendMinimizerKeys(keys []uint64, fwd, rev string, k, windowLen, numWindows int) []uint64 {
	for w := 0; w < numWindows; w++ {
		if key := windowMinimizer(fwd, w, k, windowLen); key != 0 {
			keys = append(keys, key)
		}
		if key := windowMinimizer(rev, w, k, windowLen); key != 0 {
			keys = append(keys, key)
		}
	}
	return keys
}
