// Package publish drives the publication of one wave of content
// units.
//
// For each wave the executor records cache-reusable units, builds one
// publish job per remaining unit (and per chunk of a chunked unit),
// and runs all jobs concurrently against the spendable-output
// controller. Every failure is classified before any retry decision:
// conflicts (double-spend, already-spent) are fatal immediately —
// retrying cannot change the outcome and would burn funds — while
// indexer lag and network faults retry with exponential backoff,
// claiming a fresh output on every attempt. The wave is complete only
// when every job has published or exhausted its retries; the latter
// aborts the deployment with everything published so far preserved.
package publish
