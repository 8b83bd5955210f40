package ledger

import (
	"fmt"
	"time"

	"github.com/dmaloney/wheelhouse/internal/num"
)

const sharesPerContract = 100

// Kind identifies what a position holds.
type Kind string

const (
	// KindShortPut is a sold cash-secured put.
	KindShortPut Kind = "short_put"
	// KindShortCall is a sold covered call.
	KindShortCall Kind = "short_call"
	// KindLongStock is assigned shares.
	KindLongStock Kind = "long_stock"
)

// Action is a trade-log entry type. The trade log is the sole source for
// the reporter's trade statistics.
type Action string

const (
	ActionSellPut      Action = "SELL_PUT"
	ActionPutAssigned  Action = "PUT_ASSIGNED"
	ActionPutExpired   Action = "PUT_EXPIRED"
	ActionSellCall     Action = "SELL_CALL"
	ActionCallAssigned Action = "CALL_ASSIGNED"
	ActionCallExpired  Action = "CALL_EXPIRED"
	ActionPutRolled    Action = "PUT_ROLLED"
	ActionCallRolled   Action = "CALL_ROLLED"
	ActionPutClosed    Action = "PUT_CLOSED"
	ActionCallClosed   Action = "CALL_CLOSED"
)

// Trade is an append-only log entry. Never mutated or removed.
type Trade struct {
	Date     time.Time `json:"date"`
	Symbol   string    `json:"symbol"`
	Action   Action    `json:"action"`
	Price    float64   `json:"price"`
	Quantity int       `json:"quantity"`
}

// Position is a mutable record owned by the Ledger. Strike and Expiration
// are zero for stock positions; CostBasisPerShare is set for stock only.
// Quantity is in shares (100 x contracts for options).
type Position[T num.Real[T]] struct {
	ID                string
	Symbol            string
	Kind              Kind
	Strike            float64
	Expiration        time.Time
	Quantity          int
	PremiumPerShare   T
	CostBasisPerShare T
	EntryDate         time.Time
}

// Contracts returns the option contract count for the position.
func (p *Position[T]) Contracts() int {
	return p.Quantity / sharesPerContract
}

// DTE returns whole days between asOf and expiration, floored at 0.
// Stock positions have no expiration and return 0.
func (p *Position[T]) DTE(asOf time.Time) int {
	if p.Expiration.IsZero() {
		return 0
	}
	days := int(p.Expiration.Sub(asOf.Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Validate enforces the structural invariants of a position record.
func (p *Position[T]) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("position %s: symbol is required", p.ID)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: quantity must be > 0 (got %d)", p.ID, p.Quantity)
	}
	switch p.Kind {
	case KindShortPut, KindShortCall:
		if p.Strike <= 0 {
			return fmt.Errorf("position %s: option strike must be > 0 (got %.2f)", p.ID, p.Strike)
		}
		if p.Expiration.IsZero() {
			return fmt.Errorf("position %s: option expiration is required", p.ID)
		}
		if p.Quantity%sharesPerContract != 0 {
			return fmt.Errorf("position %s: option quantity must be a multiple of %d (got %d)",
				p.ID, sharesPerContract, p.Quantity)
		}
	case KindLongStock:
		if p.Strike != 0 || !p.Expiration.IsZero() {
			return fmt.Errorf("position %s: stock positions carry no strike or expiration", p.ID)
		}
	default:
		return fmt.Errorf("position %s: unknown kind %q", p.ID, p.Kind)
	}
	return nil
}
