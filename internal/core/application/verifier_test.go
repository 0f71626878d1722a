package application

import (
	"context"
	"errors"
	"testing"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/core/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	getTransaction   func(ctx context.Context, txID string) (map[string]any, error)
	getAddressScript func(ctx context.Context, address string) (string, error)
}

func (f *fakeIndexer) GetTransaction(ctx context.Context, txID string) (map[string]any, error) {
	if f.getTransaction == nil {
		return nil, ports.ErrTxNotIndexed
	}
	return f.getTransaction(ctx, txID)
}

func (f *fakeIndexer) GetAddressScript(ctx context.Context, address string) (string, error) {
	if f.getAddressScript == nil {
		return "", errors.New("no script resolver configured")
	}
	return f.getAddressScript(ctx, address)
}

const testVaultScript = "20aabb"

func vaultPayload(sompi float64) map[string]any {
	return map[string]any{
		"outputs": []any{
			map[string]any{"amount": sompi, "scriptPublicKey": testVaultScript},
			map[string]any{"amount": float64(99), "scriptPublicKey": "20ffff"},
		},
	}
}

func TestVerifyEmbeddedOutputs(t *testing.T) {
	ctx := context.Background()
	verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, false).
		WithLookupPolicy(1, 0, 0)

	result, err := verifier.Verify(ctx, VerifyRequest{
		TransactionID:      "tx-a",
		TransactionPayload: vaultPayload(150000000),
		VaultAddress:       "kaspatest:vault",
	})
	require.NoError(t, err)
	require.Equal(t, MethodEmbeddedOutputs, result.Method)
	require.Equal(t, "1.5", result.Amount.String())
}

func TestVerifyMissingTransactionID(t *testing.T) {
	verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, false)

	_, err := verifier.Verify(context.Background(), VerifyRequest{TransactionID: "  "})
	require.True(t, domain.IsKind(err, domain.ErrMissingTransactionID))
}

func TestVerifyNoVaultOutput(t *testing.T) {
	verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, true).
		WithLookupPolicy(1, 0, 0)

	// A declared amount never rescues a transaction that pays the wrong
	// script: the embedded outputs were parsed and rejected for good.
	_, err := verifier.Verify(context.Background(), VerifyRequest{
		TransactionID: "tx-a",
		TransactionPayload: map[string]any{
			"outputs": []any{
				map[string]any{"amount": float64(100000000), "scriptPublicKey": "20ffff"},
			},
		},
		ClaimedAmount: decimal.NewFromInt(10),
		VaultAddress:  "kaspatest:vault",
	})
	require.True(t, domain.IsKind(err, domain.ErrNoVaultOutput))

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, testVaultScript, domainErr.Details["expectedScript"])
	require.Equal(t, []string{"20ffff"}, domainErr.Details["foundScripts"])
}

func TestVerifyIndexerLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("found on first attempt", func(t *testing.T) {
		indexer := &fakeIndexer{
			getTransaction: func(_ context.Context, txID string) (map[string]any, error) {
				require.Equal(t, "tx-a", txID)
				return vaultPayload(200000000), nil
			},
		}
		verifier := NewTxVerifier(indexer, testVaultScript, false).WithLookupPolicy(1, 0, 0)

		result, err := verifier.Verify(ctx, VerifyRequest{
			TransactionID: "tx-a",
			VaultAddress:  "kaspatest:vault",
		})
		require.NoError(t, err)
		require.Equal(t, MethodIndexerLookup, result.Method)
		require.Equal(t, "2", result.Amount.String())
	})

	t.Run("retries until indexed", func(t *testing.T) {
		calls := 0
		indexer := &fakeIndexer{
			getTransaction: func(context.Context, string) (map[string]any, error) {
				calls++
				if calls < 3 {
					return nil, ports.ErrTxNotIndexed
				}
				return vaultPayload(100000000), nil
			},
		}
		verifier := NewTxVerifier(indexer, testVaultScript, false).WithLookupPolicy(5, 0, 0)

		result, err := verifier.Verify(ctx, VerifyRequest{
			TransactionID: "tx-a",
			VaultAddress:  "kaspatest:vault",
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.Equal(t, "1", result.Amount.String())
	})

	t.Run("exhausted retries carry the cause", func(t *testing.T) {
		calls := 0
		indexer := &fakeIndexer{
			getTransaction: func(context.Context, string) (map[string]any, error) {
				calls++
				return nil, ports.ErrTxNotIndexed
			},
		}
		verifier := NewTxVerifier(indexer, testVaultScript, false).WithLookupPolicy(4, 0, 0)

		_, err := verifier.Verify(ctx, VerifyRequest{
			TransactionID: "tx-a",
			VaultAddress:  "kaspatest:vault",
		})
		require.True(t, domain.IsKind(err, domain.ErrTransactionNotFound))
		require.Equal(t, 4, calls)

		var domainErr *domain.Error
		require.ErrorAs(t, err, &domainErr)
		require.Contains(t, domainErr.Details["cause"], "not indexed")
	})
}

func TestVerifyRelaxedClaim(t *testing.T) {
	ctx := context.Background()
	req := VerifyRequest{
		TransactionID: "tx-a",
		ClaimedAmount: decimal.NewFromFloat(2.5),
		VaultAddress:  "kaspatest:vault",
	}

	t.Run("accepted on test networks", func(t *testing.T) {
		verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, true).WithLookupPolicy(1, 0, 0)

		result, err := verifier.Verify(ctx, req)
		require.NoError(t, err)
		require.Equal(t, MethodRelaxedClaim, result.Method)
		require.Equal(t, "2.5", result.Amount.String())
	})

	t.Run("payload amount preferred over claimed", func(t *testing.T) {
		verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, true).WithLookupPolicy(1, 0, 0)

		withPayload := req
		withPayload.TransactionPayload = map[string]any{"amount": float64(7)}
		result, err := verifier.Verify(ctx, withPayload)
		require.NoError(t, err)
		require.Equal(t, MethodRelaxedClaim, result.Method)
		require.Equal(t, "7", result.Amount.String())
	})

	t.Run("refused outside test networks", func(t *testing.T) {
		verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, false).WithLookupPolicy(1, 0, 0)

		_, err := verifier.Verify(ctx, req)
		require.True(t, domain.IsKind(err, domain.ErrTransactionNotFound))
	})

	t.Run("refused without any amount", func(t *testing.T) {
		verifier := NewTxVerifier(&fakeIndexer{}, testVaultScript, true).WithLookupPolicy(1, 0, 0)

		_, err := verifier.Verify(ctx, VerifyRequest{
			TransactionID: "tx-a",
			VaultAddress:  "kaspatest:vault",
		})
		require.True(t, domain.IsKind(err, domain.ErrTransactionNotFound))
	})
}

func TestResolveVaultScript(t *testing.T) {
	ctx := context.Background()

	t.Run("resolved through the indexer and cached", func(t *testing.T) {
		calls := 0
		indexer := &fakeIndexer{
			getTransaction: func(context.Context, string) (map[string]any, error) {
				return vaultPayload(100000000), nil
			},
			getAddressScript: func(_ context.Context, address string) (string, error) {
				calls++
				require.Equal(t, "kaspatest:vault", address)
				return "20AABB", nil
			},
		}
		verifier := NewTxVerifier(indexer, "", false).WithLookupPolicy(1, 0, 0)

		for i := 0; i < 2; i++ {
			result, err := verifier.Verify(ctx, VerifyRequest{
				TransactionID: "tx-a",
				VaultAddress:  "kaspatest:vault",
			})
			require.NoError(t, err)
			require.Equal(t, "1", result.Amount.String())
		}
		require.Equal(t, 1, calls, "script resolved once and cached")
	})

	t.Run("resolution failure", func(t *testing.T) {
		indexer := &fakeIndexer{
			getTransaction: func(context.Context, string) (map[string]any, error) {
				return vaultPayload(100000000), nil
			},
			getAddressScript: func(context.Context, string) (string, error) {
				return "", errors.New("boom")
			},
		}
		verifier := NewTxVerifier(indexer, "", false).WithLookupPolicy(1, 0, 0)

		_, err := verifier.Verify(ctx, VerifyRequest{
			TransactionID: "tx-a",
			VaultAddress:  "kaspatest:vault",
		})
		require.True(t, domain.IsKind(err, domain.ErrAmountUnavailable))
	})
}
