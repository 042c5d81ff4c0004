package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureRecord() DeploymentRecord {
	return DeploymentRecord{
		RunToken:  "0192d5a0-0000-7000-8000-000000000001",
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Entry:     "index.html",
		Units: []PublishedUnit{
			{
				Path:        "logo.png",
				TxID:        "tx-1",
				Vout:        0,
				AccessPath:  "tx-1i0",
				Size:        2048,
				Fingerprint: "fp-logo",
			},
			{
				Path:            "styles.css",
				TxID:            "tx-2",
				Vout:            0,
				AccessPath:      "tx-2i0",
				Size:            512,
				Fingerprint:     "fp-css",
				DepsFingerprint: "fp-css-deps",
			},
			{
				Path:            "video.mp4",
				TxID:            "tx-5",
				Vout:            0,
				AccessPath:      "tx-5i0",
				Size:            5_000_000,
				Fingerprint:     "fp-video",
				ChunkCount:      2,
				Manifest: &ChunkManifest{
					Version:   ManifestVersion,
					Path:      "video.mp4",
					MIME:      "video/mp4",
					TotalSize: 5_000_000,
					ChunkSize: 262_144,
					Chunks: []ChunkRecord{
						{Index: 0, TxID: "tx-3", Vout: 0, Size: 262_144, Fingerprint: "fp-c0"},
						{Index: 1, TxID: "tx-4", Vout: 0, Size: 262_144, Fingerprint: "fp-c1"},
					},
				},
			},
		},
		TxIDs:      []string{"tx-1", "tx-2", "tx-3", "tx-4", "tx-5"},
		NewTxCount: 5,
		NewBytes:   5_002_560,
		TotalFee:   1200,
		VersionTag: "v1.2.0",
	}
}

// TestRecord_RoundTrip verifies save/load preserves every field.
func TestRecord_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployment.json")

	rec := fixtureRecord()
	require.NoError(t, SaveRecord(path, &rec))

	got, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

// TestRecord_Golden pins the on-disk JSON shape. The record is the
// contract between runs; a failing golden means the next run's cache
// evaluator may no longer read records written by this build.
func TestRecord_Golden(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployment.json")

	rec := fixtureRecord()
	require.NoError(t, SaveRecord(path, &rec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "deployment_record", data)
}

func TestHistory_MissingFileIsEmpty(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, HistorySchemaVersion, h.SchemaVersion)
	assert.Empty(t, h.Deployments)
	assert.Nil(t, h.Latest())
}

func TestHistory_MalformedReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadHistory(path)
	assert.Error(t, err)
}

func TestHistory_AppendAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	h := &History{SchemaVersion: HistorySchemaVersion, Project: "demo", ChainOrigin: "origin-tx"}
	h.Append(fixtureRecord())
	require.NoError(t, SaveHistory(path, h))

	// Append a second record and save again; earlier records must be
	// byte-for-byte preserved.
	h2, err := LoadHistory(path)
	require.NoError(t, err)
	require.Len(t, h2.Deployments, 1)

	rec2 := fixtureRecord()
	rec2.RunToken = "0192d5a0-0000-7000-8000-000000000002"
	h2.Append(rec2)
	require.NoError(t, SaveHistory(path, h2))

	h3, err := LoadHistory(path)
	require.NoError(t, err)
	require.Len(t, h3.Deployments, 2)
	assert.Equal(t, h.Deployments[0], h3.Deployments[0])
	assert.Equal(t, rec2.RunToken, h3.Latest().RunToken)
	assert.Equal(t, "origin-tx", h3.ChainOrigin)
}
