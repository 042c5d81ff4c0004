package outputs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chainpress/chainpress/internal/ledger"
)

// ErrNoSpendable is returned when no uncommitted output can cover a
// claim. It frequently means the indexer has not yet seen outputs
// created moments ago, so callers treat it as retryable.
var ErrNoSpendable = errors.New("no spendable output available (indexer may lag behind just-created outputs)")

// splitTxSizeBound is an upper bound on a split transaction's
// envelope: version byte, marker, outpoint, address, count/value
// header, and change/fee tail all fit well inside it.
const splitTxSizeBound = 512

// Controller owns the spendable output set for one deployment run.
// Safe for concurrent use by all publish jobs in a wave.
type Controller struct {
	indexer ledger.Indexer
	address string

	mu        sync.Mutex
	available []ledger.Output
	committed map[string]bool // outpoints handed out this run, never reissued
}

// NewController creates a controller for the funding address.
func NewController(indexer ledger.Indexer, address string) *Controller {
	return &Controller{
		indexer:   indexer,
		address:   address,
		committed: make(map[string]bool),
	}
}

// Refresh replaces the available set with the indexer's current view,
// minus everything already committed this run. Committed outpoints
// stay committed forever: the indexer listing an output again does
// not make it spendable again.
func (c *Controller) Refresh(ctx context.Context) error {
	outs, err := c.indexer.ListUnspent(ctx, c.address)
	if err != nil {
		return fmt.Errorf("refresh outputs: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.available = c.available[:0]
	for _, o := range outs {
		if c.committed[o.Outpoint()] {
			continue
		}
		c.available = append(c.available, o)
	}
	c.sortLocked()
	return nil
}

// Claim atomically takes one output of at least minValue out of the
// pool and commits it. On a miss it refreshes from the indexer once
// before giving up with ErrNoSpendable.
//
// The claim is permanent for the run even if the caller's publish
// later fails; retries claim a fresh output instead.
func (c *Controller) Claim(ctx context.Context, minValue int64) (ledger.Output, error) {
	if out, ok := c.take(minValue); ok {
		return out, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return ledger.Output{}, err
	}
	if out, ok := c.take(minValue); ok {
		return out, nil
	}
	return ledger.Output{}, fmt.Errorf("claim %d: %w", minValue, ErrNoSpendable)
}

// Add returns a known-new output (change from a just-broadcast
// transaction, or a pre-split product) to the pool without waiting
// for the indexer to see it.
func (c *Controller) Add(out ledger.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed[out.Outpoint()] {
		return
	}
	c.available = append(c.available, out)
	c.sortLocked()
}

// PreSplit consumes one funded output and broadcasts a transaction
// creating count outputs of valuePer each, registering them locally
// so jobs can claim them before the indexer catches up. Returns the
// split transaction id and its fee.
func (c *Controller) PreSplit(ctx context.Context, count int, valuePer, feeRate int64) (string, int64, error) {
	// The claimed output must cover the created outputs plus the split
	// transaction's own fee. The envelope never exceeds
	// splitTxSizeBound bytes, so the estimate can only overshoot.
	feeEst := feeRate*splitTxSizeBound/1000 + 1
	need := int64(count)*valuePer + feeEst
	funding, err := c.Claim(ctx, need)
	if err != nil {
		return "", 0, fmt.Errorf("pre-split: %w", err)
	}

	plan, err := ledger.BuildSplitTx(funding, c.address, count, valuePer, feeRate)
	if err != nil {
		return "", 0, fmt.Errorf("pre-split: %w", err)
	}

	txid, err := c.indexer.Broadcast(ctx, plan.Raw)
	if err != nil {
		return "", 0, fmt.Errorf("pre-split broadcast: %w", err)
	}
	slog.Info("pre-split broadcast", "txid", txid, "count", count, "value_per", valuePer, "fee", plan.Fee)

	for i := 0; i < count; i++ {
		c.Add(ledger.Output{TxID: txid, Vout: uint32(i), Value: valuePer})
	}
	if plan.ChangeValue > 0 {
		c.Add(ledger.Output{TxID: txid, Vout: uint32(count), Value: plan.ChangeValue})
	}
	return txid, plan.Fee, nil
}

// Available reports the current pool size (for progress reporting).
func (c *Controller) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.available)
}

// Committed reports how many outpoints this run has consumed.
func (c *Controller) Committed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.committed)
}

// take pops the smallest available output covering minValue
// (best fit: large outputs are saved for large claims and future
// splits) and commits it.
func (c *Controller) take(minValue int64) (ledger.Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// available is sorted ascending by value; first fit is best fit.
	for i, o := range c.available {
		if o.Value >= minValue {
			c.available = append(c.available[:i], c.available[i+1:]...)
			c.committed[o.Outpoint()] = true
			return o, true
		}
	}
	return ledger.Output{}, false
}

// sortLocked keeps available ascending by (value, outpoint). The
// outpoint tiebreak makes claim order deterministic.
func (c *Controller) sortLocked() {
	sort.Slice(c.available, func(i, j int) bool {
		if c.available[i].Value != c.available[j].Value {
			return c.available[i].Value < c.available[j].Value
		}
		return c.available[i].Outpoint() < c.available[j].Outpoint()
	})
}
