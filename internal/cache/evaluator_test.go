package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpress/chainpress/internal/analyze"
	"github.com/chainpress/chainpress/internal/fingerprint"
	"github.com/chainpress/chainpress/internal/manifest"
	"github.com/chainpress/chainpress/internal/publish"
)

func unitFor(path string, data []byte) *analyze.ContentUnit {
	return &analyze.ContentUnit{
		Path:        path,
		MIME:        analyze.MIMEForPath(path),
		Fingerprint: fingerprint.Content(data),
		Size:        int64(len(data)),
	}
}

// priorDeployment publishes logo.png (leaf), styles.css (deps: logo),
// index.html (deps: styles, logo) and returns the record plus the
// access paths that were current when it was written.
func priorDeployment(t *testing.T) (*manifest.DeploymentRecord, map[string]string) {
	t.Helper()

	resolved := map[string]string{
		"logo.png":   "tx-logo" + "i0",
		"styles.css": "tx-styles" + "i0",
		"index.html": "tx-index" + "i0",
	}
	rec := &manifest.DeploymentRecord{
		RunToken: "run-prior",
		Units: []manifest.PublishedUnit{
			{
				Path:        "logo.png",
				TxID:        "tx-logo",
				AccessPath:  resolved["logo.png"],
				Fingerprint: fingerprint.Content([]byte("png-bytes")),
			},
			{
				Path:            "styles.css",
				TxID:            "tx-styles",
				AccessPath:      resolved["styles.css"],
				Fingerprint:     fingerprint.Content([]byte("body{}")),
				DepsFingerprint: fingerprint.Dependencies([]string{"logo.png"}, resolved),
			},
			{
				Path:            "index.html",
				TxID:            "tx-index",
				AccessPath:      resolved["index.html"],
				Fingerprint:     fingerprint.Content([]byte("<html>")),
				DepsFingerprint: fingerprint.Dependencies([]string{"styles.css", "logo.png"}, resolved),
			},
		},
	}
	return rec, resolved
}

func TestEvaluate_UnchangedLeafReused(t *testing.T) {
	rec, _ := priorDeployment(t)
	ev := NewEvaluator(rec)
	access := publish.NewAccessMap()

	got, ok := ev.Evaluate(unitFor("logo.png", []byte("png-bytes")), nil, access)
	require.True(t, ok)
	assert.True(t, got.Cached)
	assert.Equal(t, "tx-logo", got.TxID)
	assert.Equal(t, "tx-logo"+"i0", got.AccessPath)
}

func TestEvaluate_ContentChangeRepublishes(t *testing.T) {
	rec, _ := priorDeployment(t)
	ev := NewEvaluator(rec)

	_, ok := ev.Evaluate(unitFor("logo.png", []byte("different-bytes")), nil, publish.NewAccessMap())
	assert.False(t, ok)
}

// TestEvaluate_WholeDeploymentIdempotent walks the prior deployment in
// dependency order with nothing changed; every unit must be reused.
func TestEvaluate_WholeDeploymentIdempotent(t *testing.T) {
	rec, _ := priorDeployment(t)
	ev := NewEvaluator(rec)
	access := publish.NewAccessMap()

	order := []struct {
		unit *analyze.ContentUnit
		deps []string
	}{
		{unitFor("logo.png", []byte("png-bytes")), nil},
		{unitFor("styles.css", []byte("body{}")), []string{"logo.png"}},
		{unitFor("index.html", []byte("<html>")), []string{"styles.css", "logo.png"}},
	}
	for _, step := range order {
		got, ok := ev.Evaluate(step.unit, step.deps, access)
		require.True(t, ok, "reuse %s", step.unit.Path)
		access.Set(got.Path, got.AccessPath)
	}
	assert.Equal(t, 3, access.Len())
}

// TestEvaluate_DependencyChangePropagates: logo.png republished at a
// new access path invalidates styles.css and, transitively,
// index.html even though their own bytes are unchanged.
func TestEvaluate_DependencyChangePropagates(t *testing.T) {
	rec, _ := priorDeployment(t)
	ev := NewEvaluator(rec)
	access := publish.NewAccessMap()

	// Wave 0: logo changed, freshly published elsewhere.
	access.Set("logo.png", "tx-logo-v2"+"i0")

	// Wave 1: styles.css bytes identical, but its dependency moved.
	_, ok := ev.Evaluate(unitFor("styles.css", []byte("body{}")), []string{"logo.png"}, access)
	assert.False(t, ok, "stale dependency fingerprint must invalidate")

	// The republished styles.css lands at a new access path too.
	access.Set("styles.css", "tx-styles-v2"+"i0")

	_, ok = ev.Evaluate(unitFor("index.html", []byte("<html>")), []string{"styles.css", "logo.png"}, access)
	assert.False(t, ok, "invalidation propagates transitively")
}

// TestEvaluate_SiblingIsolation: a changed unit does not disturb a
// sibling that never depended on it.
func TestEvaluate_SiblingIsolation(t *testing.T) {
	rec, _ := priorDeployment(t)
	ev := NewEvaluator(rec)
	access := publish.NewAccessMap()

	// logo.png changed and republished, but this styles.css variant
	// never referenced it.
	access.Set("logo.png", "tx-logo-v2"+"i0")

	got, ok := ev.Evaluate(unitFor("styles.css", []byte("body{}")), nil, access)
	require.True(t, ok, "a unit with no dependencies only answers to its own bytes")
	assert.Equal(t, "tx-styles", got.TxID)
}

func TestEvaluate_MissingDepsFingerprintRepublishes(t *testing.T) {
	rec := &manifest.DeploymentRecord{Units: []manifest.PublishedUnit{{
		Path:        "app.js",
		TxID:        "tx-app",
		AccessPath:  "tx-app" + "i0",
		Fingerprint: fingerprint.Content([]byte("code")),
	}}}
	ev := NewEvaluator(rec)
	access := publish.NewAccessMap()
	access.Set("logo.png", "tx-logo"+"i0")

	_, ok := ev.Evaluate(unitFor("app.js", []byte("code")), []string{"logo.png"}, access)
	assert.False(t, ok)
}

func TestEvaluate_NoPriorRecord(t *testing.T) {
	ev := NewEvaluator(nil)
	assert.Equal(t, 0, ev.Len())

	_, ok := ev.Evaluate(unitFor("logo.png", []byte("png-bytes")), nil, publish.NewAccessMap())
	assert.False(t, ok)
}

// TestEvaluate_ChunkedUnitKeepsManifest: reuse of a chunked unit hands
// back the recorded chunk manifest untouched.
func TestEvaluate_ChunkedUnitKeepsManifest(t *testing.T) {
	data := []byte("video-bytes")
	m := &manifest.ChunkManifest{
		Version:   manifest.ManifestVersion,
		Path:      "movie.mp4",
		MIME:      "video/mp4",
		TotalSize: int64(len(data)),
		ChunkSize: 262144,
		Chunks: []manifest.ChunkRecord{
			{Index: 0, TxID: "tx-c0", Size: int64(len(data)), Fingerprint: fingerprint.Chunk(data)},
		},
	}
	rec := &manifest.DeploymentRecord{Units: []manifest.PublishedUnit{{
		Path:        "movie.mp4",
		TxID:        "tx-manifest",
		AccessPath:  "tx-manifest" + "i0",
		Fingerprint: fingerprint.Content(data),
		ChunkCount:  1,
		Manifest:    m,
	}}}

	ev := NewEvaluator(rec)
	got, ok := ev.Evaluate(unitFor("movie.mp4", data), nil, publish.NewAccessMap())
	require.True(t, ok)
	require.NotNil(t, got.Manifest)
	assert.Equal(t, m, got.Manifest)
	assert.Equal(t, 1, got.ChunkCount)
}

// TestEvaluate_UnresolvedDependencyRepublishes: a dependency with no
// resolved access path sits on a broken cycle edge. It hashed as
// empty when the prior fingerprint was recorded too, so a matching
// fingerprint proves nothing; the unit republishes every run.
func TestEvaluate_UnresolvedDependencyRepublishes(t *testing.T) {
	deps := []string{"b.js"}
	rec := &manifest.DeploymentRecord{
		Units: []manifest.PublishedUnit{{
			Path:            "a.js",
			TxID:            "tx-a",
			AccessPath:      "tx-a" + "i0",
			Fingerprint:     fingerprint.Content([]byte("import b")),
			DepsFingerprint: fingerprint.Dependencies(deps, map[string]string{}),
		}},
	}
	ev := NewEvaluator(rec)

	_, ok := ev.Evaluate(unitFor("a.js", []byte("import b")), deps, publish.NewAccessMap())
	assert.False(t, ok)
}
