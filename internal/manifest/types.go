package manifest

import "time"

// ManifestVersion tags the chunk manifest schema. Bump only with a
// migration path for already-inscribed manifests: published agents
// resolve manifests by this tag forever.
const ManifestVersion = 1

// HistorySchemaVersion tags the history file schema.
const HistorySchemaVersion = 1

// ChunkRecord describes one part of a split file.
type ChunkRecord struct {
	// Index is the chunk's position in reassembly order, starting at 0.
	Index int `json:"index"`

	// TxID and Vout locate the inscribed chunk payload on the ledger.
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`

	// Size is the chunk payload length in bytes.
	Size int64 `json:"size"`

	// Fingerprint is the chunk-domain hash of the payload.
	Fingerprint string `json:"fingerprint"`
}

// ChunkManifest describes how to reassemble a split file. Fetching
// every chunk in Chunks order and concatenating the payloads yields
// the original file bytes exactly.
type ChunkManifest struct {
	Version   int           `json:"version"`
	Path      string        `json:"path"`
	MIME      string        `json:"mime"`
	TotalSize int64         `json:"total_size"`
	ChunkSize int64         `json:"chunk_size"`
	Chunks    []ChunkRecord `json:"chunks"`
}

// PublishedUnit is the durable record of one successfully published
// content unit (or of a prior publish being reused).
type PublishedUnit struct {
	// Path is the unit's build-root-relative path.
	Path string `json:"path"`

	// TxID and Vout locate the inscription. For a chunked unit they
	// locate the inscribed chunk manifest, not any individual chunk.
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`

	// AccessPath is the derived retrieval address ("<txid>i<vout>").
	AccessPath string `json:"access_path"`

	// Size is the original file size in bytes.
	Size int64 `json:"size"`

	// Fingerprint is the content fingerprint of the raw bytes, before
	// any reference rewriting.
	Fingerprint string `json:"fingerprint"`

	// DepsFingerprint hashes the resolved access paths of the unit's
	// dependencies at publish time. Empty for units with no
	// dependencies. A dependent is cache-reusable only while this
	// still matches the freshly computed value.
	DepsFingerprint string `json:"deps_fingerprint,omitempty"`

	// Cached marks a unit that was not republished this run.
	Cached bool `json:"cached,omitempty"`

	// Chunked units carry their manifest verbatim; it is preserved
	// untouched on cache reuse.
	ChunkCount int            `json:"chunk_count,omitempty"`
	Manifest   *ChunkManifest `json:"chunk_manifest,omitempty"`
}

// DeploymentRecord captures one deployment run.
type DeploymentRecord struct {
	// RunToken is a UUIDv7 identifying the run.
	RunToken string `json:"run_token"`

	Timestamp time.Time `json:"timestamp"`

	// Entry is the deployment's entry document path.
	Entry string `json:"entry"`

	// Units lists every unit of the deployment, published and reused
	// alike (reused units have Cached set and contribute nothing to
	// the cost totals below).
	Units []PublishedUnit `json:"units"`

	// TxIDs lists every transaction id produced this run, in
	// broadcast order. Includes pre-split and manifest transactions.
	TxIDs []string `json:"txids"`

	// Cost accounting for this run only.
	NewTxCount int   `json:"new_tx_count"`
	NewBytes   int64 `json:"new_bytes"`
	TotalFee   int64 `json:"total_fee"`

	// Version metadata supplied by the operator.
	VersionTag         string `json:"version_tag,omitempty"`
	VersionDescription string `json:"version_description,omitempty"`

	// VersionTxID is this run's release-chain inscription, when
	// version tracking is on. Doubles as the chain tip for the next
	// run.
	VersionTxID string `json:"version_txid,omitempty"`

	// Aborted marks a partial record written after a fatal
	// mid-deployment error. Everything in Units and TxIDs is still
	// valid and feeds the next run's cache.
	Aborted bool `json:"aborted,omitempty"`
}

// UnitByPath indexes the record's units.
func (r *DeploymentRecord) UnitByPath() map[string]PublishedUnit {
	m := make(map[string]PublishedUnit, len(r.Units))
	for _, u := range r.Units {
		m[u.Path] = u
	}
	return m
}

// History is the append-only sequence of deployment records for one
// project.
type History struct {
	SchemaVersion int    `json:"schema_version"`
	Project       string `json:"project,omitempty"`

	// ChainOrigin is the immutable origin identifier of the optional
	// version-tracking chain. Set on the first deployment that uses
	// version tracking and never changed afterwards.
	ChainOrigin string `json:"chain_origin,omitempty"`

	Deployments []DeploymentRecord `json:"deployments"`
}

// Latest returns the most recent deployment record, or nil if none.
func (h *History) Latest() *DeploymentRecord {
	if len(h.Deployments) == 0 {
		return nil
	}
	return &h.Deployments[len(h.Deployments)-1]
}

// Append adds a record. History is append-only: records are never
// rewritten in place.
func (h *History) Append(r DeploymentRecord) {
	h.Deployments = append(h.Deployments, r)
}
