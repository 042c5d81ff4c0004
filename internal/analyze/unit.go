package analyze

// ContentUnit is one file discovered under the build root. Units are
// created once per analysis pass and immutable afterwards; the
// fingerprint always covers the raw bytes as read from disk, before
// any reference rewriting.
type ContentUnit struct {
	// Path is the build-root-relative path, the unit's unique key
	// within a deployment. Always normalized (forward slashes, NFC).
	Path string

	// AbsPath is the absolute filesystem location.
	AbsPath string

	// MIME is derived from the extension against a fixed table.
	MIME string

	// Fingerprint is the content-domain hash of the raw bytes.
	Fingerprint string

	// Size is the file length in bytes.
	Size int64

	// Refs lists the build-root-relative paths this unit references,
	// deduplicated, in first-appearance order. Only references that
	// resolve to files present in the build survive graph
	// construction.
	Refs []string
}
