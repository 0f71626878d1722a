// Package payout ships the manual executor: payout and refund intents are
// logged as operator instructions instead of being broadcast on-chain.
// Automatic execution would slot in behind the same port.
package payout

import (
	"context"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type manualExecutor struct {
	signingConfigured bool
}

// NewManualExecutor builds the log-only executor. signingConfigured only
// changes the wording of the instruction: funds never move automatically
// in this executor.
func NewManualExecutor(signingConfigured bool) ports.PayoutExecutor {
	return &manualExecutor{signingConfigured: signingConfigured}
}

func (e *manualExecutor) ExecutePayout(ctx context.Context, req domain.PayoutRequest) error {
	log.WithFields(log.Fields{
		"requestId":  req.ID,
		"defiId":     req.ChallengeID,
		"recipient":  req.RecipientAddress,
		"amount":     req.Amount,
		"feeReserve": req.FeeReserve,
	}).Warn("manual transaction required: send payout from vault")
	if e.signingConfigured {
		log.Info("signing credential is configured but automatic payout is not enabled; payout recorded for manual execution")
	}
	return nil
}

func (e *manualExecutor) ExecuteRefund(ctx context.Context, req domain.RefundRequest) error {
	log.WithFields(log.Fields{
		"requestId": req.ID,
		"defiId":    req.ChallengeID,
		"reason":    req.Reason,
		"entries":   len(req.Entries),
		"total":     req.Total(),
	}).Warn("manual transaction required: refund donors from vault")
	for _, entry := range req.Entries {
		log.WithFields(log.Fields{
			"requestId": req.ID,
			"donor":     entry.DonorAddress,
			"amount":    entry.Amount,
			"txId":      entry.TransactionID,
		}).Info("refund entry")
	}
	return nil
}
