// Package version maintains the append-only release chain: one
// inscription per deployment, each entry naming its predecessor's
// transaction id. The origin entry has no predecessor; walking from
// the tip back to the origin reproduces the full release history from
// the ledger alone.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chainpress/chainpress/internal/ledger"
)

// Entry is one release record as inscribed.
type Entry struct {
	Tag         string    `json:"tag"`
	Description string    `json:"description,omitempty"`
	RunToken    string    `json:"run_token"`
	AppEntry    string    `json:"app_entry,omitempty"` // access path of the entry document
	Prev        string    `json:"prev,omitempty"`      // txid of the previous release, empty at origin
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher inscribes one payload and returns its transaction id.
type Publisher func(ctx context.Context, contentType string, payload []byte) (string, error)

// Chain appends release entries through a Publisher. origin and tip
// come from the prior deployment history; both empty for a first
// deployment.
type Chain struct {
	mu      sync.Mutex
	publish Publisher
	origin  string
	tip     string
}

// NewChain resumes (or starts) a release chain.
func NewChain(publish Publisher, origin, tip string) *Chain {
	return &Chain{publish: publish, origin: origin, tip: tip}
}

// Origin returns the txid of the first release, or "" before one
// exists.
func (c *Chain) Origin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

// Tip returns the txid of the latest release, or "".
func (c *Chain) Tip() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip
}

// Append links the entry to the current tip, inscribes it, and
// advances the tip. The entry's Prev is overwritten; a zero Timestamp
// is filled with the current time.
func (c *Chain) Append(ctx context.Context, e Entry) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.Prev = c.tip
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	blob, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal release entry: %w", err)
	}
	txid, err := c.publish(ctx, "application/json", blob)
	if err != nil {
		return "", fmt.Errorf("inscribe release %q: %w", e.Tag, err)
	}

	if c.origin == "" {
		c.origin = txid
	}
	c.tip = txid
	return txid, nil
}

// WalkedEntry pairs a decoded release with the txid it was read from.
type WalkedEntry struct {
	TxID string
	Entry
}

// Walk reads the chain from tip back toward the origin, newest first.
// limit <= 0 means the whole chain. A repeated txid means the ledger
// data is corrupt, not that the walk should spin.
func Walk(ctx context.Context, idx ledger.Indexer, tip string, limit int) ([]WalkedEntry, error) {
	var out []WalkedEntry
	seen := make(map[string]bool)

	for txid := tip; txid != ""; {
		if seen[txid] {
			return nil, fmt.Errorf("release chain cycles at %s", txid)
		}
		seen[txid] = true

		raw, err := idx.GetTransaction(ctx, txid)
		if err != nil {
			return nil, fmt.Errorf("read release %s: %w", txid, err)
		}
		insc, err := ledger.ExtractInscription(raw)
		if err != nil {
			return nil, fmt.Errorf("release %s: %w", txid, err)
		}
		var e Entry
		if err := json.Unmarshal(insc.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode release %s: %w", txid, err)
		}

		out = append(out, WalkedEntry{TxID: txid, Entry: e})
		if limit > 0 && len(out) >= limit {
			break
		}
		txid = e.Prev
	}
	return out, nil
}

// Latest reads only the tip entry. ok is false when the chain is
// empty.
func Latest(ctx context.Context, idx ledger.Indexer, tip string) (WalkedEntry, bool, error) {
	if tip == "" {
		return WalkedEntry{}, false, nil
	}
	entries, err := Walk(ctx, idx, tip, 1)
	if err != nil {
		return WalkedEntry{}, false, err
	}
	return entries[0], true, nil
}
