// Package fingerprint computes content-addressed identities for build
// output.
//
// Two kinds of fingerprint exist:
//
//   - Content fingerprint: BLAKE3 over a unit's raw bytes, computed
//     before any reference rewriting. Identifies "this exact file".
//   - Dependency fingerprint: BLAKE3 over the resolved access paths of
//     a unit's dependencies, in dependency-path order. Identifies
//     "this exact set of published dependencies". When a dependency is
//     republished at a new access path, every dependent's dependency
//     fingerprint changes, which is what drives cache invalidation up
//     the graph.
//
// All hashing uses keyed BLAKE3 with fixed 32-byte domain keys so the
// same input bytes can never collide across domains. Paths are NFC
// normalized before hashing; macOS filesystems report NFD paths and
// the same site must fingerprint identically on every platform.
package fingerprint
