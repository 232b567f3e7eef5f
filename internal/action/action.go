package action

import (
	"context"

	"github.com/google/uuid"
)

// Receipt identifies a confirmed external action.
type Receipt struct {
	ID     string  `json:"receipt_id"`
	Amount float64 `json:"amount"`
}

// Executor performs the irreversible external action for an item. A failed
// action is reported to the caller and never aborts the surrounding run.
type Executor interface {
	Perform(ctx context.Context, item string, score float64) (Receipt, error)
}

// AmountFor sizes the action by score: 0.005 units per point, bounded to
// [0.01, 0.05].
func AmountFor(score float64) float64 {
	amount := score * 0.005
	if amount < 0.01 {
		return 0.01
	}
	if amount > 0.05 {
		return 0.05
	}
	return amount
}

// DryRun confirms every action locally with a synthetic receipt. Used when
// no vault endpoint is configured.
type DryRun struct{}

func (DryRun) Perform(_ context.Context, _ string, score float64) (Receipt, error) {
	return Receipt{
		ID:     "dry-" + uuid.New().String(),
		Amount: AmountFor(score),
	}, nil
}
