package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/infrastructure/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTestStore(t *testing.T) domain.ChallengeRepository {
	t.Helper()
	svc, err := db.NewService(db.ServiceConfig{
		DbType:   "badger",
		DbConfig: []any{"", nil},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc.Challenges()
}

func testChallenge(id string) domain.Challenge {
	recordedAt := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
	return domain.Challenge{
		ID:            id,
		Title:         "speedrun any%",
		Goal:          decimal.NewFromInt(500),
		CurrentAmount: decimal.NewFromFloat(123.45678901),
		Status:        domain.StatusActive,
		Deadline:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Donations: []domain.Donation{
			{
				Amount:        decimal.NewFromFloat(123.45678901),
				DonorAddress:  "kaspatest:alice",
				Timestamp:     recordedAt,
				TransactionID: "tx-a",
			},
		},
		RecipientAddress: "kaspatest:streamer",
		VaultAddress:     "kaspatest:vault",
		Network:          "testnet-10",
		NetworkRPC:       "https://api.example.org",
	}
}

func TestUnsupportedDbType(t *testing.T) {
	_, err := db.NewService(db.ServiceConfig{DbType: "postgres"})
	require.Error(t, err)
}

func TestChallengeRepository(t *testing.T) {
	repo := newTestStore(t)

	t.Run("get missing challenge", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		require.True(t, domain.IsKind(err, domain.ErrChallengeNotFound))
	})

	t.Run("add and get", func(t *testing.T) {
		want := testChallenge("defi-1")
		require.NoError(t, repo.Add(ctx, want))

		got, err := repo.Get(ctx, "defi-1")
		require.NoError(t, err)
		require.Equal(t, want.ID, got.ID)
		require.Equal(t, want.Title, got.Title)
		require.Equal(t, want.Status, got.Status)
		require.True(t, want.Goal.Equal(got.Goal))
		require.True(t, want.CurrentAmount.Equal(got.CurrentAmount))
		require.Equal(t, want.Deadline.UnixMilli(), got.Deadline.UnixMilli())
		require.Len(t, got.Donations, 1)
		require.True(t, want.Donations[0].Amount.Equal(got.Donations[0].Amount))
		require.Equal(t, "tx-a", got.Donations[0].TransactionID)
		require.Nil(t, got.PendingPayout)
		require.Nil(t, got.PayoutRecordedAt)
	})

	t.Run("duplicate add rejected", func(t *testing.T) {
		err := repo.Add(ctx, testChallenge("defi-1"))
		require.True(t, domain.IsKind(err, domain.ErrChallengeExists))
	})

	t.Run("get all", func(t *testing.T) {
		require.NoError(t, repo.Add(ctx, testChallenge("defi-2")))

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})

	t.Run("update persists mutation", func(t *testing.T) {
		now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
		updated, err := repo.Update(ctx, "defi-1", func(c *domain.Challenge) error {
			c.AddDonation(domain.Donation{
				Amount:        decimal.NewFromInt(400),
				DonorAddress:  "kaspatest:bob",
				Timestamp:     now,
				TransactionID: "tx-b",
			})
			if err := c.SetStatus(domain.StatusAwaitingValidation); err != nil {
				return err
			}
			c.PendingPayout = c.ComputePendingPayout(now)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, domain.StatusAwaitingValidation, updated.Status)

		got, err := repo.Get(ctx, "defi-1")
		require.NoError(t, err)
		require.Equal(t, domain.StatusAwaitingValidation, got.Status)
		require.Len(t, got.Donations, 2)
		require.NotNil(t, got.PendingPayout)
		require.Equal(t, "23.45678901", got.PendingPayout.Overdonation.String())
		require.Equal(t, now.UnixMilli(), got.PendingPayout.ComputedAt.UnixMilli())
	})

	t.Run("update failure leaves record untouched", func(t *testing.T) {
		_, err := repo.Update(ctx, "defi-2", func(c *domain.Challenge) error {
			c.Title = "mutated"
			return domain.NewError(domain.ErrInvalidRequest, "nope")
		})
		require.True(t, domain.IsKind(err, domain.ErrInvalidRequest))

		got, err := repo.Get(ctx, "defi-2")
		require.NoError(t, err)
		require.Equal(t, "speedrun any%", got.Title)
	})

	t.Run("update missing challenge", func(t *testing.T) {
		_, err := repo.Update(ctx, "missing", func(*domain.Challenge) error { return nil })
		require.True(t, domain.IsKind(err, domain.ErrChallengeNotFound))
	})
}
