package dedup

import (
	farm "github.com/dgryski/go-farm"
)

// exemplarRecord is the retained copy of a read pair that founded a
// cluster.  The strings are backed by the scratch arena, so a record must
// never be referenced after Finalize.
type exemplarRecord struct {
	id  string
	fwd string
	rev string
}

// indexNode is one bucket-list entry.  A record founded under several
// minimizer keys is shared by one node per key bucket.
type indexNode struct {
	ex   *exemplarRecord
	next *indexNode
}

// exemplarIndex maps minimizer keys to the exemplars that carry them.  It
// exists only during the build phase and is dropped in its entirety at
// Finalize.  The bucket array is sized once from the expected read count
// and never resizes; buckets are singly linked lists with head insertion.
type exemplarIndex struct {
	buckets []*indexNode
}

// tableSizeFor picks a prime comfortably above the expected read count.
// The ladder tops out at a prime adequate for ~20M reads.
func tableSizeFor(expectedReads int) int {
	target := expectedReads + expectedReads/5
	switch {
	case target < 1000:
		return 1009
	case target < 10000:
		return 10007
	case target < 100000:
		return 100003
	case target < 1000000:
		return 1000003
	case target < 10000000:
		return 10000019
	}
	return 16777259
}

func newExemplarIndex(size int) *exemplarIndex {
	return &exemplarIndex{buckets: make([]*indexNode, size)}
}

func (idx *exemplarIndex) bucketFor(key uint64) int {
	return int(farm.Hash64WithSeed(nil, key) % uint64(len(idx.buckets)))
}

// insert files ex under key, in front of the key's bucket list.
func (idx *exemplarIndex) insert(key uint64, ex *exemplarRecord) {
	i := idx.bucketFor(key)
	idx.buckets[i] = &indexNode{ex: ex, next: idx.buckets[i]}
}

// findMatch visits each distinct key's bucket in order and returns the
// first exemplar the matcher accepts, or nil.  There is no search for a
// globally best match; quality-based correction happens later in the
// cluster registry.
func (idx *exemplarIndex) findMatch(keys []uint64, qFwd, qRev string, maxOffset int, maxErrorFrac float64) *exemplarRecord {
	for i, key := range keys {
		if keySeen(keys[:i], key) {
			continue
		}
		for node := idx.buckets[idx.bucketFor(key)]; node != nil; node = node.next {
			if pairMatches(qFwd, qRev, node.ex, maxOffset, maxErrorFrac) {
				return node.ex
			}
		}
	}
	return nil
}

// keySeen scans the (at most 2*NumWindows long) prefix linearly.
func keySeen(keys []uint64, key uint64) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
