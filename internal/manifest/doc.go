// Package manifest holds the durable record types shared by the
// deployer's components: published units, chunk manifests, deployment
// records, and the append-only deployment history.
//
// Everything here serializes to JSON. The deployment record is the
// contract between runs: the cache evaluator of run N+1 reads the
// record written by run N, so field changes must stay
// backward-readable (a record that fails to parse is treated as "no
// cache available", never as a fatal error).
package manifest
