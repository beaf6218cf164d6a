// Package trace implements a versioned multiset: a collection of (key, value,
// time, diff) updates where diff is a signed weight and time ranges over a
// lattice of logical timestamps.
//
// Updates enter through a Batcher, which consolidates them and seals completed
// time intervals into immutable, sorted Batches. Batches accumulate in a
// Spine, an LSM-style index that lazily merges them into geometrically sized
// runs so that the batch count stays logarithmic in the collection size.
// Readers navigate content through Cursors, which traverse one batch or a
// merged view of many without copying.
//
// Key components:
//   - Update/Consolidate: the update tuple and the law that collapses equal
//     (key, value, time) triples and drops zero weights.
//   - Batch/Builder/Merger: an immutable sorted run over a time interval, its
//     incremental constructor, and a fuel-bounded two-way merge.
//   - Batcher: absorbs raw unsorted updates and seals them into batches.
//   - Spine: the long-lived index with fueled geometric merging and
//     frontier-driven compaction.
//   - Agent/Writer/Listener: the sharing layer letting one writer's insert
//     stream serve many independently paced readers over one physical spine.
//
// The package is single-threaded by contract: a spine and everything attached
// to it belong to one goroutine, and all operations complete synchronously in
// amortized bounded time. Contract violations (non-contiguous inserts,
// regressing frontiers, sealing backwards) indicate bugs in the calling layer
// and panic rather than returning errors.
package trace
