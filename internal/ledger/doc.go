// Package ledger defines the narrow interface the deployer needs from
// a content-addressed ledger, plus the types that cross it.
//
// The core requires exactly three capabilities from an indexer:
// broadcast a raw transaction, list the unspent outputs of an address,
// and fetch a raw transaction by id. Everything provider-specific
// (wire formats, authentication, endpoints) lives behind the Indexer
// interface; the concrete client is injected at the CLI boundary.
//
// The package also ships DryRun, an in-memory Indexer that fabricates
// transaction ids and simulates indexer lag. Dry-run deployments run
// the identical scheduling, caching, and retry logic as real ones, so
// most of the deployer's tests exercise real code paths against it.
package ledger
