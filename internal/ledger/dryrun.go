package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DryRun is an in-memory Indexer. It accepts the same transactions a
// real indexer would, fabricates transaction ids, enforces
// double-spend rules, and can simulate indexer lag (outputs invisible
// to ListUnspent for a period after creation).
//
// Every Broadcast and ListUnspent takes an artificial delay comparable
// to a real network round trip so timing-dependent logic (retry
// backoff, wave barriers) is exercised rather than short-circuited.
type DryRun struct {
	mu       sync.Mutex
	outputs  map[string]dryOutput // outpoint -> output + visibility
	spent    map[string]bool      // outpoints consumed by accepted txs
	rawTxs   map[string][]byte    // txid -> raw
	txids    func() string
	delay    time.Duration
	lag      time.Duration
	failures map[string]error // txid-prefix independent injected faults, keyed by outpoint
}

type dryOutput struct {
	out       Output
	address   string
	visibleAt time.Time
}

// DryRunOption configures a DryRun indexer.
type DryRunOption func(*DryRun)

// WithDelay sets the artificial per-call delay. Default 20ms.
func WithDelay(d time.Duration) DryRunOption {
	return func(dr *DryRun) { dr.delay = d }
}

// WithVisibilityLag delays newly created outputs from appearing in
// ListUnspent, simulating a slow indexer. Default zero.
func WithVisibilityLag(d time.Duration) DryRunOption {
	return func(dr *DryRun) { dr.lag = d }
}

// WithTxIDs replaces the fabricated transaction id source. Tests use
// NewSequenceTxIDs for deterministic ids.
func WithTxIDs(gen func() string) DryRunOption {
	return func(dr *DryRun) { dr.txids = gen }
}

// WithBroadcastFault injects an error returned once for any broadcast
// spending the given outpoint. Used by tests to exercise retry and
// conflict classification.
func WithBroadcastFault(outpoint string, err error) DryRunOption {
	return func(dr *DryRun) { dr.failures[outpoint] = err }
}

// NewDryRun creates a dry-run indexer holding one funded output for
// the given address.
func NewDryRun(address string, fundingValue int64, opts ...DryRunOption) *DryRun {
	dr := &DryRun{
		outputs:  make(map[string]dryOutput),
		spent:    make(map[string]bool),
		rawTxs:   make(map[string][]byte),
		txids:    uuidTxID,
		delay:    20 * time.Millisecond,
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(dr)
	}
	seed := Output{TxID: dr.txids(), Vout: 0, Value: fundingValue}
	dr.outputs[seed.Outpoint()] = dryOutput{out: seed, address: address}
	return dr
}

// uuidTxID fabricates a transaction id from a UUIDv7, so dry-run ids
// are unique and time-sortable like real ones.
func uuidTxID() string {
	u := uuid.Must(uuid.NewV7())
	return strings.ReplaceAll(u.String(), "-", "")
}

// NewSequenceTxIDs returns a generator producing "prefix-0",
// "prefix-1", ... for deterministic test fixtures.
func NewSequenceTxIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := fmt.Sprintf("%s-%d", prefix, n)
		n++
		return id
	}
}

// Broadcast accepts the envelope formats produced by
// BuildInscriptionTx and BuildSplitTx, consumes the spent output, and
// materializes the created outputs.
func (dr *DryRun) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	if err := dr.pause(ctx); err != nil {
		return "", err
	}

	parsed, err := parseEnvelope(rawTx)
	if err != nil {
		return "", err
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	if fault, ok := dr.failures[parsed.spendOutpoint]; ok {
		delete(dr.failures, parsed.spendOutpoint)
		return "", fault
	}
	if dr.spent[parsed.spendOutpoint] {
		return "", fmt.Errorf("broadcast rejected: double-spend of %s", parsed.spendOutpoint)
	}
	if _, ok := dr.outputs[parsed.spendOutpoint]; !ok {
		return "", fmt.Errorf("broadcast rejected: input %s not found", parsed.spendOutpoint)
	}

	prev := dr.outputs[parsed.spendOutpoint]
	dr.spent[parsed.spendOutpoint] = true
	delete(dr.outputs, parsed.spendOutpoint)

	txid := dr.txids()
	dr.rawTxs[txid] = append([]byte(nil), rawTx...)

	visibleAt := time.Now().Add(dr.lag)
	addOut := func(vout uint32, value int64) {
		if value <= 0 {
			return
		}
		o := Output{TxID: txid, Vout: vout, Value: value}
		dr.outputs[o.Outpoint()] = dryOutput{out: o, address: prev.address, visibleAt: visibleAt}
	}

	if parsed.split {
		for i := 0; i < parsed.count; i++ {
			addOut(uint32(i), parsed.valuePer)
		}
		addOut(uint32(parsed.count), parsed.change)
	} else {
		addOut(0, InscriptionValue)
		addOut(1, parsed.change)
	}

	return txid, nil
}

// ListUnspent returns outputs for the address that have passed their
// visibility lag.
func (dr *DryRun) ListUnspent(ctx context.Context, address string) ([]Output, error) {
	if err := dr.pause(ctx); err != nil {
		return nil, err
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	now := time.Now()
	var outs []Output
	for _, o := range dr.outputs {
		if o.address != address {
			continue
		}
		if o.visibleAt.After(now) {
			continue
		}
		outs = append(outs, o.out)
	}
	return outs, nil
}

// GetTransaction returns the raw bytes of a previously broadcast
// transaction.
func (dr *DryRun) GetTransaction(ctx context.Context, id string) ([]byte, error) {
	if err := dr.pause(ctx); err != nil {
		return nil, err
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	raw, ok := dr.rawTxs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	return raw, nil
}

func (dr *DryRun) pause(ctx context.Context) error {
	if dr.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dr.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type parsedTx struct {
	split         bool
	spendOutpoint string
	count         int
	valuePer      int64
	change        int64
}

// parseEnvelope reads the deterministic envelope produced by the
// builders in tx.go. Only the fields the dry-run ledger needs are
// extracted.
func parseEnvelope(raw []byte) (parsedTx, error) {
	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil || version != txEnvelopeVersion {
		return parsedTx{}, fmt.Errorf("malformed transaction envelope")
	}

	first, err := readField(r)
	if err != nil {
		return parsedTx{}, err
	}

	var p parsedTx
	if string(first) == "split" {
		p.split = true
		spend, err := readField(r)
		if err != nil {
			return parsedTx{}, err
		}
		p.spendOutpoint = string(spend)
		if _, err := readField(r); err != nil { // funding address
			return parsedTx{}, err
		}
		var hdr [12]byte
		if _, err := r.Read(hdr[:]); err != nil {
			return parsedTx{}, fmt.Errorf("malformed split header: %w", err)
		}
		p.count = int(binary.BigEndian.Uint32(hdr[:4]))
		p.valuePer = int64(binary.BigEndian.Uint64(hdr[4:]))
	} else {
		p.spendOutpoint = string(first)
		if _, err := readField(r); err != nil { // funding address
			return parsedTx{}, err
		}
		if _, err := readField(r); err != nil { // content type
			return parsedTx{}, err
		}
		if _, err := readField(r); err != nil { // payload
			return parsedTx{}, err
		}
	}

	var tail [16]byte
	if _, err := r.Read(tail[:]); err != nil {
		return parsedTx{}, fmt.Errorf("malformed envelope tail: %w", err)
	}
	p.change = int64(binary.BigEndian.Uint64(tail[:8]))
	return p, nil
}

func readField(r *bytes.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := r.Read(n[:]); err != nil {
		return nil, fmt.Errorf("malformed envelope field: %w", err)
	}
	size := binary.BigEndian.Uint32(n[:])
	if size > uint32(r.Len()) {
		return nil, fmt.Errorf("malformed envelope field: length %d exceeds remaining bytes", size)
	}
	field := make([]byte, size)
	if _, err := r.Read(field); err != nil {
		return nil, fmt.Errorf("malformed envelope field: %w", err)
	}
	return field, nil
}
