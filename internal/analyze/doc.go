// Package analyze turns a build directory into a dependency graph of
// content units.
//
// The analyzer reads every regular file exactly once, fingerprints the
// raw bytes, classifies the MIME type from the extension, and — for
// recognized text formats only — extracts references to other files in
// the build. External URLs, protocol-relative URLs, data/blob URIs,
// fragments, and framework template placeholders are never treated as
// dependencies. References that resolve to a path not present in the
// build are dropped silently.
//
// Analysis is pure and deterministic: two runs over unchanged input
// produce identical graphs, byte for byte. A file that cannot be read
// is reported as a warning and excluded; one bad file never aborts the
// whole analysis.
package analyze
