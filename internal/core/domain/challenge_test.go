package domain_test

import (
	"testing"
	"time"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestChallenge(goal float64) domain.Challenge {
	return domain.Challenge{
		ID:            "defi-1",
		Title:         "reach rank 1",
		Goal:          decimal.NewFromFloat(goal),
		CurrentAmount: decimal.Zero,
		Status:        domain.StatusActive,
		Deadline:      time.Now().Add(time.Hour),
		Donations:     []domain.Donation{},
	}
}

func TestStatusTransitions(t *testing.T) {
	allStatuses := []domain.ChallengeStatus{
		domain.StatusActive, domain.StatusAwaitingValidation, domain.StatusValidated,
		domain.StatusRefused, domain.StatusExpired, domain.StatusRefunded,
	}
	allowed := map[domain.ChallengeStatus][]domain.ChallengeStatus{
		domain.StatusActive:             {domain.StatusAwaitingValidation, domain.StatusExpired},
		domain.StatusAwaitingValidation: {domain.StatusValidated, domain.StatusRefused},
		domain.StatusExpired:            {domain.StatusRefunded},
		domain.StatusValidated:          {},
		domain.StatusRefused:            {},
		domain.StatusRefunded:           {},
	}

	for from, targets := range allowed {
		for _, to := range allStatuses {
			c := newTestChallenge(100)
			c.Status = from
			shouldPass := false
			for _, ok := range targets {
				if ok == to {
					shouldPass = true
				}
			}
			err := c.SetStatus(to)
			if shouldPass {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, c.Status)
			} else {
				require.Error(t, err, "%s -> %s", from, to)
				require.True(t, domain.IsKind(err, domain.ErrInvalidTransition))
				require.Equal(t, from, c.Status)
			}
		}
	}
}

func TestInvalidTransitionDetails(t *testing.T) {
	c := newTestChallenge(100)
	c.Status = domain.StatusValidated

	err := c.SetStatus(domain.StatusActive)
	require.Error(t, err)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, "validated", domainErr.Details["from"])
	require.Equal(t, "active", domainErr.Details["to"])
}

func TestAddDonationKeepsSumInvariant(t *testing.T) {
	c := newTestChallenge(100)
	amounts := []float64{12.5, 0.00000001, 30}

	for _, a := range amounts {
		c.AddDonation(domain.Donation{
			Amount:        decimal.NewFromFloat(a),
			DonorAddress:  "kaspatest:donor",
			Timestamp:     time.Now(),
			TransactionID: "tx",
		})
	}

	sum := decimal.Zero
	for _, d := range c.Donations {
		sum = sum.Add(d.Amount)
	}
	require.True(t, c.CurrentAmount.Equal(sum),
		"current %s != sum %s", c.CurrentAmount, sum)
	require.Equal(t, "42.50000001", c.CurrentAmount.String())
}

func TestHasDonation(t *testing.T) {
	c := newTestChallenge(100)
	c.AddDonation(domain.Donation{Amount: decimal.NewFromInt(5), TransactionID: "tx-a"})

	require.True(t, c.HasDonation("tx-a"))
	require.False(t, c.HasDonation("tx-b"))
}

func TestGoalReached(t *testing.T) {
	c := newTestChallenge(100)
	require.False(t, c.GoalReached())

	c.AddDonation(domain.Donation{Amount: decimal.NewFromInt(100), TransactionID: "tx-a"})
	require.True(t, c.GoalReached(), "exact goal counts as reached")

	c.AddDonation(domain.Donation{Amount: decimal.NewFromInt(1), TransactionID: "tx-b"})
	require.True(t, c.GoalReached())
}

func TestComputePendingPayout(t *testing.T) {
	now := time.Now()

	t.Run("overdonation split", func(t *testing.T) {
		c := newTestChallenge(1000)
		c.AddDonation(domain.Donation{
			Amount: decimal.NewFromInt(600), DonorAddress: "kaspatest:alice", TransactionID: "tx-a",
		})
		c.AddDonation(domain.Donation{
			Amount: decimal.NewFromInt(450), DonorAddress: "kaspatest:bob", TransactionID: "tx-b",
		})

		pending := c.ComputePendingPayout(now)
		require.Equal(t, "1000", pending.Amount.String())
		require.Equal(t, "50", pending.Overdonation.String())
		require.Equal(t, "2.5", pending.Fee.String())
		require.Equal(t, "47.5", pending.RefundAmount.String())
		require.Equal(t, "kaspatest:bob", pending.RefundRecipient)
		require.Equal(t, now, pending.ComputedAt)
	})

	t.Run("exact goal has no refund", func(t *testing.T) {
		c := newTestChallenge(100)
		c.AddDonation(domain.Donation{
			Amount: decimal.NewFromInt(100), DonorAddress: "kaspatest:alice", TransactionID: "tx-a",
		})

		pending := c.ComputePendingPayout(now)
		require.True(t, pending.Overdonation.IsZero())
		require.True(t, pending.Fee.IsZero())
		require.True(t, pending.RefundAmount.IsZero())
		require.Empty(t, pending.RefundRecipient)
	})

	t.Run("minimum fee applies to small overshoot", func(t *testing.T) {
		c := newTestChallenge(100)
		c.AddDonation(domain.Donation{
			Amount: decimal.NewFromInt(110), DonorAddress: "kaspatest:alice", TransactionID: "tx-a",
		})

		// 5% of 10 is 0.5, below the minimum fee of 1.
		pending := c.ComputePendingPayout(now)
		require.Equal(t, "1", pending.Fee.String())
		require.Equal(t, "9", pending.RefundAmount.String())
	})

	t.Run("fee never exceeds overdonation", func(t *testing.T) {
		c := newTestChallenge(100)
		c.AddDonation(domain.Donation{
			Amount: decimal.NewFromFloat(100.25), DonorAddress: "kaspatest:alice", TransactionID: "tx-a",
		})

		pending := c.ComputePendingPayout(now)
		require.Equal(t, "0.25", pending.Fee.String())
		require.True(t, pending.RefundAmount.IsZero())
		require.False(t, pending.RefundAmount.IsNegative())
	})
}

func TestExpiryHelpers(t *testing.T) {
	c := newTestChallenge(100)
	c.Deadline = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	before := c.Deadline.Add(-10 * time.Minute)
	after := c.Deadline.Add(10 * time.Minute)

	require.False(t, c.IsExpired(before))
	require.True(t, c.IsExpired(after))
	require.Equal(t, 10*time.Minute, c.TimeRemaining(before))
	require.Equal(t, time.Duration(0), c.TimeRemaining(after))
}
