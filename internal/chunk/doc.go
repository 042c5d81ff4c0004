// Package chunk splits oversized files into ledger-publishable parts.
//
// A unit whose size exceeds the threshold is split; the deployment's
// entry document never is, because clients fetch it before any
// reassembly machinery exists. Ordinary files split into uniform
// fixed-size parts. Video files use a progressive schedule — a short
// Fibonacci-style ramp of small chunks, then a constant maximum — so a
// streaming client can start playback after the first, smallest chunk.
//
// Concatenating chunk payloads in manifest order always reproduces the
// original bytes exactly; the manifest carries enough per-chunk detail
// (index, transaction id, output index, size, fingerprint) for any
// client to do so. The generated reassembly agent is a service worker
// that intercepts requests for chunked paths and streams the parts
// back together; the agent's source is deterministic given the
// manifest set, so it cache-evaluates like any other unit.
package chunk
