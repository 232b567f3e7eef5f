package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/rendis/harvest/pkg/schema"
)

const (
	ledgerHoldings uint32 = 1
	codeAcquire    uint16 = 10

	operatorAccountLabel = "acct:operator"
	holdingAccountPrefix = "acct:holding:"
	acquireTransferPref  = "xfer:acquire:"
)

// Amounts are floats in the domain; TigerBeetle transfers are integral,
// so balances are kept in micro-units.
const microUnits = 1e6

// ClientPool manages a fixed set of TigerBeetle clients.
type ClientPool struct {
	clients   []tb.Client
	available chan tb.Client
}

// NewClientPool creates a pool with the requested number of sessions.
func NewClientPool(clusterID uint32, addresses []string, sessions int) (*ClientPool, error) {
	if sessions <= 0 {
		sessions = 1
	}
	clients := make([]tb.Client, 0, sessions)
	available := make(chan tb.Client, sessions)
	cluster := tbtypes.ToUint128(uint64(clusterID))
	for i := 0; i < sessions; i++ {
		client, err := tb.NewClient(cluster, addresses)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("create TB client: %w", err)
		}
		clients = append(clients, client)
		available <- client
	}
	return &ClientPool{clients: clients, available: available}, nil
}

// Acquire returns a client from the pool or an error on context cancellation.
func (p *ClientPool) Acquire(ctx context.Context) (tb.Client, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case client := <-p.available:
		return client, nil
	}
}

// Release returns a client to the pool.
func (p *ClientPool) Release(client tb.Client) {
	if client == nil {
		return
	}
	p.available <- client
}

// Close shuts down all clients in the pool.
func (p *ClientPool) Close() error {
	for _, client := range p.clients {
		client.Close()
	}
	return nil
}

// ID128 deterministically maps a string label to a TigerBeetle Uint128.
func ID128(label string) tbtypes.Uint128 {
	sum := sha256.Sum256([]byte(label))
	var raw [16]byte
	copy(raw[:], sum[:16])
	if isZero(raw) || isMax(raw) {
		raw[0] ^= 0x01
	}
	return tbtypes.BytesToUint128(raw)
}

// OperatorAccountID returns the funding account ID.
func OperatorAccountID() tbtypes.Uint128 {
	return ID128(operatorAccountLabel)
}

// HoldingAccountID returns the account ID for an acquired item.
func HoldingAccountID(item string) tbtypes.Uint128 {
	return ID128(holdingAccountPrefix + item)
}

// AcquireTransferID returns the transfer ID for a receipt. Deterministic
// IDs make retried recordings idempotent.
func AcquireTransferID(receiptID string) tbtypes.Uint128 {
	return ID128(acquireTransferPref + receiptID)
}

func isZero(raw [16]byte) bool {
	for _, b := range raw[:] {
		if b != 0 {
			return false
		}
	}
	return true
}

func isMax(raw [16]byte) bool {
	for _, b := range raw[:] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// TigerBeetle mirrors each acquisition as a double-entry transfer from the
// operator account to a per-item holding account, then delegates to the
// inner ledger so summaries stay queryable.
type TigerBeetle struct {
	pool  *ClientPool
	inner Ledger
}

// NewTigerBeetle creates a TigerBeetle-backed ledger that also records
// through inner.
func NewTigerBeetle(pool *ClientPool, inner Ledger) *TigerBeetle {
	return &TigerBeetle{pool: pool, inner: inner}
}

func (l *TigerBeetle) Record(ctx context.Context, entry Entry) error {
	if err := l.ensureAccounts(ctx, entry.Item); err != nil {
		return err
	}

	transfer := tbtypes.Transfer{
		ID:              AcquireTransferID(entry.ReceiptID),
		DebitAccountID:  OperatorAccountID(),
		CreditAccountID: HoldingAccountID(entry.Item),
		Ledger:          ledgerHoldings,
		Code:            codeAcquire,
		Amount:          tbtypes.ToUint128(microAmount(entry.Amount)),
	}

	client, err := l.pool.Acquire(ctx)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeLedger, "acquire TB client: %s", err.Error()).WithCause(err)
	}
	results, err := client.CreateTransfers([]tbtypes.Transfer{transfer})
	l.pool.Release(client)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeLedger, "create transfer: %s", err.Error()).WithCause(err)
	}
	for _, result := range results {
		if result.Result == tbtypes.TransferExists {
			continue
		}
		return schema.NewErrorf(schema.ErrCodeLedger, "transfer error: %s", result.Result).
			WithDetails(map[string]any{"item": entry.Item, "receipt_id": entry.ReceiptID})
	}

	if l.inner != nil {
		return l.inner.Record(ctx, entry)
	}
	return nil
}

// ensureAccounts creates the operator and holding accounts as needed.
func (l *TigerBeetle) ensureAccounts(ctx context.Context, item string) error {
	accounts := []tbtypes.Account{
		{
			ID:     OperatorAccountID(),
			Ledger: ledgerHoldings,
			Code:   codeAcquire,
		},
		{
			ID:     HoldingAccountID(item),
			Ledger: ledgerHoldings,
			Code:   codeAcquire,
			Flags:  tbtypes.AccountFlags{DebitsMustNotExceedCredits: true}.ToUint16(),
		},
	}
	client, err := l.pool.Acquire(ctx)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeLedger, "acquire TB client: %s", err.Error()).WithCause(err)
	}
	results, err := client.CreateAccounts(accounts)
	l.pool.Release(client)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeLedger, "create accounts: %s", err.Error()).WithCause(err)
	}
	for _, result := range results {
		if result.Result == tbtypes.AccountExists {
			continue
		}
		return schema.NewErrorf(schema.ErrCodeLedger, "create account error: %s", result.Result)
	}
	return nil
}

func (l *TigerBeetle) Close() error {
	return l.pool.Close()
}

// microAmount converts a float amount into integral micro-units.
func microAmount(amount float64) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Round(amount * microUnits))
}

var _ Ledger = (*TigerBeetle)(nil)
