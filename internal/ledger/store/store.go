// Package store defines the keyed persistence interface for ledger state.
// Implementations include Redis (external store) and in-memory (backtests
// and tests). Persistence is best-effort: a failed save is logged by the
// caller and never blocks trading.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// State is the persisted ledger snapshot for one broker/account/strategy.
type State struct {
	Positions   []schema.Position `json:"positions"`
	CurrentCash decimal.Decimal   `json:"current_cash"`
}

// Store saves and loads ledger state by key.
type Store interface {
	Save(ctx context.Context, key string, state State) error
	// Load returns the stored state and whether the key existed.
	Load(ctx context.Context, key string) (State, bool, error)
}

// Key builds the partition key for one broker/account/strategy identity.
func Key(brokerName, account, strategy string) string {
	return fmt.Sprintf("%s_ACCOUNTS/%s/%s", strings.ToUpper(brokerName), account, strategy)
}
