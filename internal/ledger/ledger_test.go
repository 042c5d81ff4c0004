package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput_Outpoint(t *testing.T) {
	o := Output{TxID: "abc123", Vout: 7, Value: 1000}
	assert.Equal(t, "abc123:7", o.Outpoint())

	txid, vout, err := ParseOutpoint(o.Outpoint())
	require.NoError(t, err)
	assert.Equal(t, "abc123", txid)
	assert.Equal(t, uint32(7), vout)
}

func TestParseOutpoint_Malformed(t *testing.T) {
	_, _, err := ParseOutpoint("no-separator")
	assert.Error(t, err)

	_, _, err = ParseOutpoint("txid:notanumber")
	assert.Error(t, err)
}

func TestAccessPath(t *testing.T) {
	assert.Equal(t, "abc123i0", AccessPath("abc123", 0))
	assert.Equal(t, "abc123i12", AccessPath("abc123", 12))
}

func TestBuildInscriptionTx_Deterministic(t *testing.T) {
	insc := Inscription{ContentType: "text/html", Payload: []byte("<html></html>")}
	spend := Output{TxID: "aaaa", Vout: 0, Value: 100_000}

	plan1, err := BuildInscriptionTx(insc, spend, "addr1", 50)
	require.NoError(t, err)
	plan2, err := BuildInscriptionTx(insc, spend, "addr1", 50)
	require.NoError(t, err)

	assert.Equal(t, plan1.Raw, plan2.Raw)
}

func TestBuildInscriptionTx_ChangeMath(t *testing.T) {
	insc := Inscription{ContentType: "image/png", Payload: make([]byte, 1000)}
	spend := Output{TxID: "aaaa", Vout: 0, Value: 100_000}

	plan, err := BuildInscriptionTx(insc, spend, "addr1", 50)
	require.NoError(t, err)

	// Everything in must come out: inscription + change + fee.
	assert.Equal(t, spend.Value, InscriptionValue+plan.ChangeValue+plan.Fee)
	assert.GreaterOrEqual(t, plan.ChangeValue, int64(DustLimit))
}

func TestBuildInscriptionTx_DustChangeForfeited(t *testing.T) {
	insc := Inscription{ContentType: "text/plain", Payload: []byte("x")}
	// Value just above the fee: change would be below dust.
	spend := Output{TxID: "aaaa", Vout: 0, Value: 100}

	plan, err := BuildInscriptionTx(insc, spend, "addr1", 1)
	require.NoError(t, err)

	assert.Zero(t, plan.ChangeValue)
	assert.Equal(t, spend.Value, InscriptionValue+plan.Fee)
}

func TestBuildInscriptionTx_Underfunded(t *testing.T) {
	insc := Inscription{ContentType: "text/plain", Payload: []byte("x")}
	_, err := BuildInscriptionTx(insc, Output{TxID: "a", Value: 1}, "addr1", 50)
	assert.Error(t, err)
}

func TestBuildSplitTx_Validation(t *testing.T) {
	spend := Output{TxID: "aaaa", Vout: 0, Value: 1_000_000}

	_, err := BuildSplitTx(spend, "addr1", 0, 1000, 50)
	assert.Error(t, err, "zero count")

	_, err = BuildSplitTx(spend, "addr1", 10, DustLimit-1, 50)
	assert.Error(t, err, "dust-sized outputs")

	_, err = BuildSplitTx(spend, "addr1", 10_000, 1000, 50)
	assert.Error(t, err, "underfunded")

	plan, err := BuildSplitTx(spend, "addr1", 10, 1000, 50)
	require.NoError(t, err)
	assert.Equal(t, spend.Value, 10*int64(1000)+plan.ChangeValue+plan.Fee)
}

func TestDryRun_BroadcastSpendsAndCreates(t *testing.T) {
	ctx := context.Background()
	dr := NewDryRun("addr1", 1_000_000,
		WithDelay(0),
		WithTxIDs(NewSequenceTxIDs("tx")))

	outs, err := dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	funding := outs[0]

	plan, err := BuildInscriptionTx(
		Inscription{ContentType: "text/html", Payload: []byte("<html></html>")},
		funding, "addr1", 50)
	require.NoError(t, err)

	txid, err := dr.Broadcast(ctx, plan.Raw)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txid)

	// The funding output is gone; inscription (1 unit) and change remain.
	outs, err = dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	var total int64
	for _, o := range outs {
		assert.NotEqual(t, funding.Outpoint(), o.Outpoint())
		total += o.Value
	}
	assert.Equal(t, InscriptionValue+plan.ChangeValue, total)

	raw, err := dr.GetTransaction(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, plan.Raw, raw)
}

func TestDryRun_DoubleSpendRejected(t *testing.T) {
	ctx := context.Background()
	dr := NewDryRun("addr1", 1_000_000, WithDelay(0))

	outs, err := dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	funding := outs[0]

	plan, err := BuildInscriptionTx(
		Inscription{ContentType: "text/plain", Payload: []byte("one")},
		funding, "addr1", 50)
	require.NoError(t, err)

	_, err = dr.Broadcast(ctx, plan.Raw)
	require.NoError(t, err)

	plan2, err := BuildInscriptionTx(
		Inscription{ContentType: "text/plain", Payload: []byte("two")},
		funding, "addr1", 50)
	require.NoError(t, err)

	_, err = dr.Broadcast(ctx, plan2.Raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "double-spend")
}

func TestDryRun_SplitProducesOutputs(t *testing.T) {
	ctx := context.Background()
	dr := NewDryRun("addr1", 1_000_000, WithDelay(0))

	outs, err := dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	funding := outs[0]

	plan, err := BuildSplitTx(funding, "addr1", 20, 2000, 50)
	require.NoError(t, err)

	_, err = dr.Broadcast(ctx, plan.Raw)
	require.NoError(t, err)

	outs, err = dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)

	var small int
	for _, o := range outs {
		if o.Value == 2000 {
			small++
		}
	}
	assert.Equal(t, 20, small)
}

func TestDryRun_VisibilityLag(t *testing.T) {
	ctx := context.Background()
	dr := NewDryRun("addr1", 1_000_000,
		WithDelay(0),
		WithVisibilityLag(50*time.Millisecond))

	// The seed output was created before the lag option applies to
	// broadcasts; list it and spend it.
	outs, err := dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	require.Len(t, outs, 1)

	plan, err := BuildInscriptionTx(
		Inscription{ContentType: "text/plain", Payload: []byte("lagged")},
		outs[0], "addr1", 50)
	require.NoError(t, err)
	_, err = dr.Broadcast(ctx, plan.Raw)
	require.NoError(t, err)

	// Immediately after broadcast the new outputs are not yet visible.
	outs, err = dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	assert.Empty(t, outs)

	// After the lag they appear.
	time.Sleep(60 * time.Millisecond)
	outs, err = dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	assert.NotEmpty(t, outs)
}

func TestDryRun_InjectedFault(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection timeout")

	// Sequenced txids make the seed outpoint predictable ("tx-0:0"),
	// so the fault can be wired to it up front.
	dr := NewDryRun("addr1", 1_000_000,
		WithDelay(0),
		WithTxIDs(NewSequenceTxIDs("tx")),
		WithBroadcastFault("tx-0:0", boom))
	outs, err := dr.ListUnspent(ctx, "addr1")
	require.NoError(t, err)
	funding := outs[0]
	require.Equal(t, "tx-0:0", funding.Outpoint())

	plan, err := BuildInscriptionTx(
		Inscription{ContentType: "text/plain", Payload: []byte("x")},
		funding, "addr1", 50)
	require.NoError(t, err)

	// First attempt hits the injected fault; second succeeds.
	_, err = dr.Broadcast(ctx, plan.Raw)
	require.ErrorIs(t, err, boom)

	_, err = dr.Broadcast(ctx, plan.Raw)
	require.NoError(t, err)
}
