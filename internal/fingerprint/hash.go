package fingerprint

import (
	"encoding/hex"
	"path"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same input bytes produce different hashes in
// different contexts. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes, so keys stay inspectable in
// hex dumps without losing any cryptographic property.
type domainKey [32]byte

// Fixed domain keys. Changing one invalidates every existing
// fingerprint in that domain, which in turn invalidates every cached
// publish, so treat them as frozen.
var (
	contentDomainKey = domainKey{
		'c', 'h', 'a', 'i', 'n', 'p', 'r', 'e', 's', 's', '.',
		'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	depsDomainKey = domainKey{
		'c', 'h', 'a', 'i', 'n', 'p', 'r', 'e', 's', 's', '.',
		'd', 'e', 'p', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	chunkDomainKey = domainKey{
		'c', 'h', 'a', 'i', 'n', 'p', 'r', 'e', 's', 's', '.',
		'c', 'h', 'u', 'n', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func keyedHash(key domainKey, data []byte) string {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes; the
		// domainKey type makes that impossible.
		panic(err)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Content computes the content fingerprint of a unit's raw bytes.
// Must be called on the bytes as read from disk, before any
// reference rewriting.
func Content(data []byte) string {
	return keyedHash(contentDomainKey, data)
}

// Chunk computes the fingerprint of a single chunk payload.
func Chunk(data []byte) string {
	return keyedHash(chunkDomainKey, data)
}

// Dependencies computes the dependency fingerprint for a unit.
//
// resolved maps dependency path -> current access path. Every path in
// deps must be present in resolved; a missing entry means the caller
// evaluated units out of dependency order, which is a programming
// error, so the missing path is hashed as an empty access path rather
// than silently skipped (the fingerprint will never match a correctly
// computed one).
//
// The hash covers (path, access path) pairs ordered by NFC-normalized
// dependency path, with a NUL separator between fields so field
// boundaries are unambiguous.
func Dependencies(deps []string, resolved map[string]string) string {
	pairs := make([][2]string, 0, len(deps))
	for _, dep := range deps {
		p := NormalizePath(dep)
		pairs = append(pairs, [2]string{p, resolved[dep]})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	h, err := blake3.NewKeyed(depsDomainKey[:])
	if err != nil {
		panic(err)
	}
	for _, pair := range pairs {
		h.Write([]byte(pair[0]))
		h.Write([]byte{0x00})
		h.Write([]byte(pair[1]))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePath canonicalizes a build-root-relative path for use as a
// map key or hash input: forward slashes, no leading "./" or "/",
// NFC-normalized Unicode.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		p = ""
	}
	return norm.NFC.String(p)
}
