package cost

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBudgetExhausted is the cancellation cause once spend reaches the cap.
var ErrBudgetExhausted = eris.New("cost: run budget exhausted")

// Budget accumulates run spend and cancels the run context once the cap is
// reached. A zero limit only tracks spend.
type Budget struct {
	limit  float64
	cancel context.CancelCauseFunc

	mu    sync.Mutex
	spent float64
	once  sync.Once
}

// NewBudget returns a child context that is cancelled with
// ErrBudgetExhausted when spend reaches limit.
func NewBudget(ctx context.Context, limit float64) (context.Context, *Budget) {
	ctx, cancel := context.WithCancelCause(ctx)
	return ctx, &Budget{limit: limit, cancel: cancel}
}

// Charge adds amount to the spend. Safe on a nil receiver.
func (b *Budget) Charge(amount float64) {
	if b == nil || amount <= 0 {
		return
	}
	b.mu.Lock()
	b.spent += amount
	spent := b.spent
	b.mu.Unlock()

	if b.limit > 0 && spent >= b.limit {
		b.once.Do(func() {
			zap.L().Warn("cost: budget exhausted, stopping after in-flight candidates",
				zap.Float64("spent_usd", spent),
				zap.Float64("limit_usd", b.limit),
			)
			b.cancel(ErrBudgetExhausted)
		})
	}
}

// Spent returns the accumulated spend.
func (b *Budget) Spent() float64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Exhausted reports whether the cap was reached.
func (b *Budget) Exhausted() bool {
	if b == nil || b.limit <= 0 {
		return false
	}
	return b.Spent() >= b.limit
}

// Release frees the budget context. Call when the run ends.
func (b *Budget) Release() {
	if b != nil {
		b.cancel(nil)
	}
}
