package ports

import (
	"context"

	"github.com/defilive/vaultd/internal/core/domain"
)

// PayoutExecutor consumes payout/refund intents computed by the lifecycle
// controller. Moving the actual funds is its problem: the core records that
// the intent was handed off and never retries on its own.
type PayoutExecutor interface {
	ExecutePayout(ctx context.Context, req domain.PayoutRequest) error
	ExecuteRefund(ctx context.Context, req domain.RefundRequest) error
}
