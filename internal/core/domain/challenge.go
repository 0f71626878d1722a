package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ChallengeStatus string

const (
	StatusActive             ChallengeStatus = "active"
	StatusAwaitingValidation ChallengeStatus = "awaiting_validation"
	StatusValidated          ChallengeStatus = "validated"
	StatusRefused            ChallengeStatus = "refused"
	StatusExpired            ChallengeStatus = "expired"
	StatusRefunded           ChallengeStatus = "refunded"
)

// validTransitions is the only authority on status changes. validated,
// refused and refunded are terminal.
var validTransitions = map[ChallengeStatus][]ChallengeStatus{
	StatusActive:             {StatusAwaitingValidation, StatusExpired},
	StatusAwaitingValidation: {StatusValidated, StatusRefused},
	StatusExpired:            {StatusRefunded},
}

// Donation is one accepted, verified contribution. The amount is the
// on-chain verified amount, not what the donor declared.
type Donation struct {
	Amount        decimal.Decimal
	DonorAddress  string
	Timestamp     time.Time
	TransactionID string
}

// PendingPayout is computed exactly once, when the goal is first reached.
// The overdonation split attributes the refund to the donor whose donation
// pushed the total past the goal.
type PendingPayout struct {
	Amount          decimal.Decimal
	Overdonation    decimal.Decimal
	Fee             decimal.Decimal
	RefundAmount    decimal.Decimal
	RefundRecipient string
	ComputedAt      time.Time
}

type Challenge struct {
	ID               string
	Title            string
	Goal             decimal.Decimal
	CurrentAmount    decimal.Decimal
	Status           ChallengeStatus
	Deadline         time.Time
	Donations        []Donation
	RecipientAddress string
	VaultAddress     string
	Network          string
	NetworkRPC       string

	PendingPayout    *PendingPayout
	PayoutRecorded   bool
	PayoutRecordedAt *time.Time
	RefundRecorded   bool
	RefundRecordedAt *time.Time
}

func (c *Challenge) CanTransition(to ChallengeStatus) bool {
	for _, next := range validTransitions[c.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// SetStatus applies a transition, rejecting any edge not in the table.
func (c *Challenge) SetStatus(to ChallengeStatus) error {
	if !c.CanTransition(to) {
		return NewError(ErrInvalidTransition, "cannot transition from "+string(c.Status)+" to "+string(to)).
			WithDetail("from", string(c.Status)).
			WithDetail("to", string(to))
	}
	c.Status = to
	return nil
}

func (c *Challenge) HasDonation(txID string) bool {
	for _, d := range c.Donations {
		if d.TransactionID == txID {
			return true
		}
	}
	return false
}

// AddDonation appends the donation and increments the running total as one
// step, so the sum invariant holds at every point the record is observable.
func (c *Challenge) AddDonation(d Donation) {
	c.Donations = append(c.Donations, d)
	c.CurrentAmount = c.CurrentAmount.Add(d.Amount)
}

func (c *Challenge) GoalReached() bool {
	return c.CurrentAmount.GreaterThanOrEqual(c.Goal)
}

func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.Deadline)
}

func (c *Challenge) TimeRemaining(now time.Time) time.Duration {
	if remaining := c.Deadline.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

var (
	overdonationFeeRate = decimal.NewFromFloat(0.05)
	minOverdonationFee  = decimal.NewFromInt(1)
)

// ComputePendingPayout fixes the payout/fee/refund split at goal completion.
// The fee is max(1, overdonation * 0.05), capped at the overdonation itself
// so a tiny overshoot never produces a negative refund.
func (c *Challenge) ComputePendingPayout(now time.Time) *PendingPayout {
	over := c.CurrentAmount.Sub(c.Goal)
	fee := decimal.Zero
	refund := decimal.Zero
	refundTo := ""
	if over.IsPositive() {
		fee = over.Mul(overdonationFeeRate)
		if fee.LessThan(minOverdonationFee) {
			fee = minOverdonationFee
		}
		if fee.GreaterThan(over) {
			fee = over
		}
		refund = over.Sub(fee)
		if n := len(c.Donations); n > 0 {
			refundTo = c.Donations[n-1].DonorAddress
		}
	}
	return &PendingPayout{
		Amount:          c.Goal,
		Overdonation:    over,
		Fee:             fee,
		RefundAmount:    refund,
		RefundRecipient: refundTo,
		ComputedAt:      now,
	}
}

// ChallengeRepository stores the funding campaigns. Update runs fn against
// the current record and persists the result atomically; concurrent updates
// to the same challenge never interleave.
type ChallengeRepository interface {
	GetAll(ctx context.Context) ([]Challenge, error)
	Get(ctx context.Context, id string) (*Challenge, error)
	Add(ctx context.Context, challenge Challenge) error
	Update(ctx context.Context, id string, fn func(*Challenge) error) (*Challenge, error)
	Close()
}
