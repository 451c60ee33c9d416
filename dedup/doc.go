/*Package dedup identifies duplicate read pairs by sequence similarity.

  Two read pairs are considered duplicates when their mates can be aligned
  within a small positional shift and a bounded mismatch budget, in either
  the standard orientation (forward against forward, reverse against
  reverse) or with the mate roles swapped.  This catches PCR and optical
  duplicates that coordinate-based marking misses: pairs whose alignments
  were perturbed by trimming, sequencing errors at the read ends, or a
  swapped mate order.

  To avoid all-pairs comparison, each mate is fingerprinted with window
  minimizers: the read start is divided into a fixed number of contiguous
  windows and the numerically smallest 2-bit-packed k-mer of each window
  becomes a bucket key.  A new read is compared only against the exemplars
  already filed under one of its own keys; the first match wins, and a read
  with no valid key anywhere (for example an all-N sequence) always founds
  a singleton cluster.

  Deduplication runs in two passes over a fixed read order:

  Pass 1 (Building): feed every read to Deduper.ProcessRead.  Each read is
  mapped to the first exemplar it matches, or becomes a new exemplar
  itself.  Per cluster, the engine tracks the highest-scoring member seen
  so far, where score is total sequence length plus mean Phred+33 base
  quality; ties keep the earlier read.

  Finalize: Deduper.Finalize releases the exemplar index and the scratch
  arena that backs the exemplar sequence copies.  Only the read-to-cluster
  mapping and the per-cluster best-member records survive.

  Pass 2 (Finalized): Deduper.FinalExemplar resolves any read id to the
  best member of its cluster in two map lookups.  Ids the engine never saw
  resolve to themselves.

  Memory is carved from two fixed-capacity bump arenas sized at creation:
  a scratch arena that lives only through Pass 1 and a result arena that
  backs everything Pass 2 needs.  Running out of arena space mid-stream is
  fatal; a read whose bytes cannot be recorded would silently
  undercount duplicates, which is a worse failure for a batch pipeline
  than a loud stop.

  A Deduper is not safe for concurrent use.  Shard the input and run one
  Deduper per shard, then combine the per-shard Stats with Stats.Merge.
  Because the first match wins and score ties favor the first-seen read,
  cluster membership depends on the read order; replaying the same order
  reproduces the same assignments exactly.
*/
package dedup
