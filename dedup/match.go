package dedup

// mismatchCount compares equal-length prefixes byte by byte.
func mismatchCount(s1, s2 string, n int) int {
	mismatches := 0
	for i := 0; i < n; i++ {
		if s1[i] != s2[i] {
			mismatches++
		}
	}
	return mismatches
}

// sequencesMatch reports whether two sequences are equivalent under a
// bounded shift and mismatch budget.  Every offset in
// [-maxOffset, maxOffset] is tried; an alignment is accepted when
// |offset| + mismatches <= maxErrorFrac * overlap.  Charging the shift
// against the budget means a zero-overlap alignment never matches.  The
// comparison is symmetric under offset negation.
func sequencesMatch(s1, s2 string, maxOffset int, maxErrorFrac float64) bool {
	if len(s1) == 0 && len(s2) == 0 {
		return true
	}
	for offset := -maxOffset; offset <= maxOffset; offset++ {
		a, b := s1, s2
		if offset >= 0 {
			if offset > len(s1) {
				continue
			}
			a = s1[offset:]
		} else {
			if -offset > len(s2) {
				continue
			}
			b = s2[-offset:]
		}
		overlap := len(a)
		if len(b) < overlap {
			overlap = len(b)
		}
		if overlap <= 0 {
			continue
		}
		shift := offset
		if shift < 0 {
			shift = -shift
		}
		if float64(shift+mismatchCount(a, b, overlap)) <= maxErrorFrac*float64(overlap) {
			return true
		}
	}
	return false
}

// pairMatches reports whether the query mates match the exemplar as a
// duplicate pair.  Both the standard orientation and the mate-swapped one
// (query forward against the exemplar's reverse and vice versa) are
// accepted.
func pairMatches(qFwd, qRev string, ex *exemplarRecord, maxOffset int, maxErrorFrac float64) bool {
	if sequencesMatch(qFwd, ex.fwd, maxOffset, maxErrorFrac) &&
		sequencesMatch(qRev, ex.rev, maxOffset, maxErrorFrac) {
		return true
	}
	if sequencesMatch(qFwd, ex.rev, maxOffset, maxErrorFrac) &&
		sequencesMatch(qRev, ex.fwd, maxOffset, maxErrorFrac) {
		return true
	}
	return false
}
