package core

import (
	"fmt"
	"sync/atomic"
)

// CallBudget is the number of provider calls one request may spend. The
// first generation and the correction draw from the same budget, so a
// request never reaches the provider more than its limit allows. Zero means
// no limit.
type CallBudget struct {
	limit int64
	spent atomic.Int64
}

// NewCallBudget returns a budget of limit provider calls.
func NewCallBudget(limit int) *CallBudget {
	return &CallBudget{limit: int64(limit)}
}

// Spend takes one call from the budget. A spent budget is left unchanged and
// yields ErrBudgetExhausted.
func (b *CallBudget) Spend() error {
	for {
		n := b.spent.Load()
		if b.limit > 0 && n >= b.limit {
			return fmt.Errorf("%w: %d of %d calls used", ErrBudgetExhausted, n, b.limit)
		}
		if b.spent.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Spent returns the calls taken so far.
func (b *CallBudget) Spent() int { return int(b.spent.Load()) }

// Remaining returns the calls left, or -1 for an unlimited budget.
func (b *CallBudget) Remaining() int {
	if b.limit == 0 {
		return -1
	}
	return int(b.limit - b.spent.Load())
}
