// Package waves orders a dependency graph into publishable groups.
//
// A wave is a set of units whose dependencies all live in strictly
// earlier waves, so every member of a wave can be published
// concurrently. Waves themselves execute strictly in order: the
// reference rewriting of wave k+1 needs the access paths produced by
// wave k.
//
// Cycles do not crash scheduling. Traversal uses an explicit
// "currently visiting" marker; a back-edge is treated as already
// satisfied, breaking the cycle at the first re-encountered node. The
// broken edges are reported on the plan so callers can surface a
// diagnostic, but they are an anomaly, not an error.
package waves
