// Package outputs manages the pool of fund-bearing ledger outputs a
// deployment spends from.
//
// Every publish job consumes exactly one spendable output. Jobs within
// a wave run concurrently, so the controller's single job is to make
// sure no output identifier is ever handed to two operations in the
// same run — even when the upstream indexer is slow and keeps listing
// outputs that were already spent, and even when a job that claimed an
// output subsequently fails (a claim is never returned to the pool;
// the output's fate on the ledger is unknown, and re-spending it risks
// a conflict).
//
// Before the first wave the controller can pre-split one funded
// output into many small same-value outputs so that concurrent jobs
// never contend for a single input. Change outputs from completed
// publishes flow back into the pool and seed later waves.
package outputs
