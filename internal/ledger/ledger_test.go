package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/harvest/internal/store"
)

func newTestLedger(t *testing.T) *SQL {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return NewSQL(s)
}

func TestSQLRecordAndSummarize(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	l.now = func() time.Time { return now }

	require.NoError(t, l.Record(ctx, Entry{
		RunID: "run-1", Item: "alpha.test", Amount: 0.04, ReceiptID: "0xaaa", At: now,
	}))
	require.NoError(t, l.Record(ctx, Entry{
		RunID: "run-1", Item: "beta.test", Amount: 0.01, ReceiptID: "0xbbb", At: now,
	}))

	summary, err := l.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsOwned)
	assert.InDelta(t, 0.05, summary.TotalInvested, 1e-9)
	assert.InDelta(t, 100.0, summary.TotalInvestedUSD, 1e-6)
	// Same-day holdings have not appreciated yet.
	assert.InDelta(t, 0.05, summary.TotalValue, 1e-9)
	assert.InDelta(t, 0.0, summary.ProfitLoss, 1e-9)
	require.Len(t, summary.Holdings, 2)
	assert.Equal(t, "alpha.test", summary.Holdings[0].Item)
}

func TestSQLSummarizeAppreciation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acquired := time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, l.Record(ctx, Entry{
		Item: "alpha.test", Amount: 0.05, ReceiptID: "0xaaa", At: acquired,
	}))

	summary, err := l.Summarize(ctx)
	require.NoError(t, err)
	// 10 days at 0.2% per day.
	assert.InDelta(t, 0.05*1.02, summary.TotalValue, 1e-6)
	assert.InDelta(t, 0.05*0.02, summary.ProfitLoss, 1e-6)
	assert.InDelta(t, 0.05*0.02*2000, summary.ProfitLossUSD, 1e-3)
}

func TestSQLSummarizeEmpty(t *testing.T) {
	l := newTestLedger(t)
	summary, err := l.Summarize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.ItemsOwned)
	assert.Empty(t, summary.Holdings)
	assert.Zero(t, summary.TotalValue)
}

func TestID128Deterministic(t *testing.T) {
	a := ID128("acct:holding:alpha.test")
	b := ID128("acct:holding:alpha.test")
	c := ID128("acct:holding:beta.test")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestMicroAmount(t *testing.T) {
	assert.Equal(t, uint64(0), microAmount(-1))
	assert.Equal(t, uint64(10000), microAmount(0.01))
	assert.Equal(t, uint64(50000), microAmount(0.05))
	assert.Equal(t, uint64(35000), microAmount(0.035))
}
