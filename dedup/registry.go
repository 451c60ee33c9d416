package dedup

// clusterStats tracks the best representative seen so far for one cluster.
// key is the immutable initial exemplar id, so registry lookups stay valid
// while bestReadID moves to better members.  bestScore never decreases;
// ties keep the earlier read.
type clusterStats struct {
	key        string
	bestReadID string
	bestScore  float64
	count      int
}

// The registry and the read mapping are ordinary resizing maps.  Their
// string keys and values are carved from the result arena, so both survive
// Finalize and remain valid for callers even after Close.
type (
	clusterRegistry map[string]*clusterStats
	readMapping     map[string]string
)

// clusterFor returns the registry entry keyed by exemplarID, creating it
// with an interned key when absent.
func (d *Deduper) clusterFor(exemplarID string) *clusterStats {
	if stats, ok := d.clusters[exemplarID]; ok {
		return stats
	}
	key := d.internResultString(exemplarID)
	stats := &clusterStats{key: key, bestReadID: key, bestScore: -1}
	d.clusters[key] = stats
	return stats
}

// readScore is the exemplar-selection score: total sequence length plus
// mean Phred+33 quality.  Quality contributes only when both mates carry
// quality strings; otherwise selection degrades to length plus first-seen
// order.
func readScore(fwdLen, revLen int, fwdQual, revQual []byte) float64 {
	score := float64(fwdLen + revLen)
	if len(fwdQual) > 0 && len(revQual) > 0 {
		score += (meanQuality(fwdQual) + meanQuality(revQual)) / 2
	}
	return score
}

func meanQuality(qual []byte) float64 {
	sum := 0
	for _, q := range qual {
		sum += int(q) - 33
	}
	return float64(sum) / float64(len(qual))
}
