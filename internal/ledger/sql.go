package ledger

import (
	"context"
	"time"

	"github.com/rendis/harvest/internal/store"
	"github.com/rendis/harvest/pkg/schema"
)

const (
	// Simulated valuation model: holdings appreciate 0.2% per day owned,
	// converted at a fixed reference rate.
	dailyAppreciation = 0.002
	usdRate           = 2000.0
)

// SQL persists acquisitions in the relational store and computes
// portfolio summaries from the acquisitions table.
type SQL struct {
	store store.Store
	now   func() time.Time
}

// NewSQL creates a store-backed ledger.
func NewSQL(s store.Store) *SQL {
	return &SQL{store: s, now: time.Now}
}

func (l *SQL) Record(ctx context.Context, entry Entry) error {
	acq := &store.Acquisition{
		RunID:      entry.RunID,
		Item:       entry.Item,
		Amount:     entry.Amount,
		ReceiptID:  entry.ReceiptID,
		AcquiredAt: entry.At,
	}
	if err := l.store.AppendAcquisition(ctx, acq); err != nil {
		return schema.NewErrorf(schema.ErrCodeLedger, "record acquisition: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (l *SQL) Summarize(ctx context.Context) (*Summary, error) {
	acqs, err := l.store.ListAcquisitions(ctx)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLedger, "list acquisitions: %s", err.Error()).WithCause(err)
	}

	now := l.now().UTC()
	summary := &Summary{
		Holdings:  make([]Holding, 0, len(acqs)),
		UpdatedAt: now,
	}
	for _, a := range acqs {
		daysOwned := int(now.Sub(a.AcquiredAt).Hours() / 24)
		if daysOwned < 0 {
			daysOwned = 0
		}
		current := a.Amount * (1.0 + float64(daysOwned)*dailyAppreciation)
		summary.Holdings = append(summary.Holdings, Holding{
			Item:         a.Item,
			Invested:     a.Amount,
			CurrentValue: current,
			ReceiptID:    a.ReceiptID,
			AcquiredAt:   a.AcquiredAt,
		})
		summary.TotalInvested += a.Amount
		summary.TotalValue += current
	}
	summary.ItemsOwned = len(summary.Holdings)
	summary.TotalInvestedUSD = summary.TotalInvested * usdRate
	summary.TotalValueUSD = summary.TotalValue * usdRate
	summary.ProfitLoss = summary.TotalValue - summary.TotalInvested
	summary.ProfitLossUSD = summary.ProfitLoss * usdRate
	return summary, nil
}

// Close is a no-op; the underlying store is owned by the caller.
func (l *SQL) Close() error { return nil }

var (
	_ Ledger     = (*SQL)(nil)
	_ Summarizer = (*SQL)(nil)
)
