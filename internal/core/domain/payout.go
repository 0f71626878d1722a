package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RefundReason string

const (
	RefundReasonRefused      RefundReason = "refused"
	RefundReasonExpired      RefundReason = "expired"
	RefundReasonOverdonation RefundReason = "overdonation"
)

// PayoutRequest is the intent to release escrowed funds to the recipient.
// Executing the transfer is the executor's job; the core only records that
// the intent was computed and handed off.
type PayoutRequest struct {
	ID               string
	ChallengeID      string
	RecipientAddress string
	Amount           decimal.Decimal
	FeeReserve       decimal.Decimal
	CreatedAt        time.Time
}

type RefundEntry struct {
	DonorAddress  string
	Amount        decimal.Decimal
	TransactionID string
}

// RefundRequest is the intent to return funds to donors, one entry per
// recorded donation (or a single entry for an overdonation refund).
type RefundRequest struct {
	ID          string
	ChallengeID string
	Reason      RefundReason
	Entries     []RefundEntry
	CreatedAt   time.Time
}

func (r RefundRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Entries {
		total = total.Add(e.Amount)
	}
	return total
}
