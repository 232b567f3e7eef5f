package ledger

import (
	"context"
	"time"
)

// Entry is one confirmed acquisition to record.
type Entry struct {
	RunID     string
	Item      string
	Amount    float64
	ReceiptID string
	At        time.Time
}

// Ledger records confirmed acquisitions.
type Ledger interface {
	Record(ctx context.Context, entry Entry) error
	Close() error
}

// Holding is one owned item with its simulated current value.
type Holding struct {
	Item         string    `json:"item"`
	Invested     float64   `json:"invested"`
	CurrentValue float64   `json:"current_value"`
	ReceiptID    string    `json:"receipt_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

// Summary aggregates the portfolio with simulated appreciation.
type Summary struct {
	ItemsOwned       int       `json:"items_owned"`
	TotalInvested    float64   `json:"total_invested"`
	TotalInvestedUSD float64   `json:"total_invested_usd"`
	TotalValue       float64   `json:"total_value"`
	TotalValueUSD    float64   `json:"total_value_usd"`
	ProfitLoss       float64   `json:"profit_loss"`
	ProfitLossUSD    float64   `json:"profit_loss_usd"`
	Holdings         []Holding `json:"holdings"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Summarizer reports the current portfolio state.
type Summarizer interface {
	Summarize(ctx context.Context) (*Summary, error)
}
