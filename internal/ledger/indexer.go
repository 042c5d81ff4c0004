package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Output is a spendable fund-bearing entry on the ledger.
type Output struct {
	// TxID is the hex transaction id that created this output.
	TxID string

	// Vout is the output's index within its transaction.
	Vout uint32

	// Value is the output's value in base ledger units (satoshis).
	Value int64
}

// Outpoint returns the canonical "txid:vout" identifier for this
// output. Outpoints are the keys of the committed-output set: two
// publish operations must never claim the same outpoint within a run.
func (o Output) Outpoint() string {
	return o.TxID + ":" + strconv.FormatUint(uint64(o.Vout), 10)
}

// ParseOutpoint splits a "txid:vout" identifier.
func ParseOutpoint(s string) (txid string, vout uint32, err error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed outpoint %q: missing separator", s)
	}
	v, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed outpoint %q: %w", s, err)
	}
	return s[:i], uint32(v), nil
}

// AccessPath derives the address at which a published payload can be
// retrieved: "<txid>i<vout>", the inscription-id convention content
// gateways resolve.
func AccessPath(txid string, vout uint32) string {
	return txid + "i" + strconv.FormatUint(uint64(vout), 10)
}

// Indexer is the ledger access the deployer depends on. Implementations
// must be safe for concurrent use: all publish jobs within a wave call
// Broadcast concurrently.
type Indexer interface {
	// Broadcast submits a raw transaction and returns its id.
	Broadcast(ctx context.Context, rawTx []byte) (string, error)

	// ListUnspent returns the spendable outputs currently visible for
	// the address. Just-broadcast outputs may be missing; callers must
	// treat that as lag, not as loss.
	ListUnspent(ctx context.Context, address string) ([]Output, error)

	// GetTransaction fetches a raw transaction by id.
	GetTransaction(ctx context.Context, id string) ([]byte, error)
}
