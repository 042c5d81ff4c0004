package version

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpress/chainpress/internal/ledger"
)

// ledgerPublisher inscribes through a dry-run ledger, always spending
// the largest visible output so change keeps funding the next entry.
func ledgerPublisher(dr *ledger.DryRun, address string) Publisher {
	return func(ctx context.Context, contentType string, payload []byte) (string, error) {
		outs, err := dr.ListUnspent(ctx, address)
		if err != nil {
			return "", err
		}
		if len(outs) == 0 {
			return "", errors.New("no spendable output for release")
		}
		sort.Slice(outs, func(i, j int) bool { return outs[i].Value > outs[j].Value })

		plan, err := ledger.BuildInscriptionTx(
			ledger.Inscription{ContentType: contentType, Payload: payload},
			outs[0], address, 10)
		if err != nil {
			return "", err
		}
		return dr.Broadcast(ctx, plan.Raw)
	}
}

func TestChain_AppendAndWalk(t *testing.T) {
	ctx := context.Background()
	dr := ledger.NewDryRun("addr1", 1_000_000, ledger.WithDelay(0))

	c := NewChain(ledgerPublisher(dr, "addr1"), "", "")
	require.Empty(t, c.Origin())

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tx1, err := c.Append(ctx, Entry{Tag: "v1", RunToken: "run-1", AppEntry: "tx-ai0", Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, tx1, c.Origin())
	assert.Equal(t, tx1, c.Tip())

	tx2, err := c.Append(ctx, Entry{Tag: "v2", Description: "second release", RunToken: "run-2", Timestamp: ts.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, tx1, c.Origin(), "origin never moves")
	assert.Equal(t, tx2, c.Tip())

	tx3, err := c.Append(ctx, Entry{Tag: "v3", RunToken: "run-3", Timestamp: ts.Add(2 * time.Hour)})
	require.NoError(t, err)

	got, err := Walk(ctx, dr, c.Tip(), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"v3", "v2", "v1"}, []string{got[0].Tag, got[1].Tag, got[2].Tag})
	assert.Equal(t, tx3, got[0].TxID)
	assert.Equal(t, tx2, got[0].Prev)
	assert.Equal(t, tx1, got[1].Prev)
	assert.Empty(t, got[2].Prev, "origin has no predecessor")
	assert.Equal(t, "tx-ai0", got[2].AppEntry)
}

func TestChain_ResumeFromHistory(t *testing.T) {
	ctx := context.Background()
	dr := ledger.NewDryRun("addr1", 1_000_000, ledger.WithDelay(0))

	first := NewChain(ledgerPublisher(dr, "addr1"), "", "")
	tx1, err := first.Append(ctx, Entry{Tag: "v1", RunToken: "run-1"})
	require.NoError(t, err)

	// A later process resumes with the persisted origin and tip.
	resumed := NewChain(ledgerPublisher(dr, "addr1"), tx1, tx1)
	tx2, err := resumed.Append(ctx, Entry{Tag: "v2", RunToken: "run-2"})
	require.NoError(t, err)
	assert.Equal(t, tx1, resumed.Origin())

	got, err := Walk(ctx, dr, tx2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tx1, got[0].Prev)
}

func TestWalk_Limit(t *testing.T) {
	ctx := context.Background()
	dr := ledger.NewDryRun("addr1", 1_000_000, ledger.WithDelay(0))

	c := NewChain(ledgerPublisher(dr, "addr1"), "", "")
	for _, tag := range []string{"v1", "v2", "v3", "v4"} {
		_, err := c.Append(ctx, Entry{Tag: tag, RunToken: "run"})
		require.NoError(t, err)
	}

	got, err := Walk(ctx, dr, c.Tip(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v4", got[0].Tag)
	assert.Equal(t, "v3", got[1].Tag)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	dr := ledger.NewDryRun("addr1", 1_000_000, ledger.WithDelay(0))

	_, ok, err := Latest(ctx, dr, "")
	require.NoError(t, err)
	assert.False(t, ok)

	c := NewChain(ledgerPublisher(dr, "addr1"), "", "")
	_, err = c.Append(ctx, Entry{Tag: "v1", RunToken: "run"})
	require.NoError(t, err)
	tx2, err := c.Append(ctx, Entry{Tag: "v2", RunToken: "run"})
	require.NoError(t, err)

	got, ok, err := Latest(ctx, dr, c.Tip())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Tag)
	assert.Equal(t, tx2, got.TxID)
}

func TestWalk_EmptyTip(t *testing.T) {
	dr := ledger.NewDryRun("addr1", 1_000, ledger.WithDelay(0))
	got, err := Walk(context.Background(), dr, "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEntry_JSONShape(t *testing.T) {
	e := Entry{Tag: "v1", RunToken: "r", Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	blob, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "prev", "empty fields stay off the ledger")
	assert.NotContains(t, string(blob), "description")
}
