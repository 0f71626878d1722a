package ports

import (
	"context"
	"errors"
)

// ErrTxNotIndexed is returned by GetTransaction while the read API has not
// indexed the transaction yet. Callers are expected to retry with backoff:
// freshly broadcast transactions can take a few seconds to appear.
var ErrTxNotIndexed = errors.New("transaction not indexed")

// TxIndexer is a read-only view over a block-explorer-style API.
type TxIndexer interface {
	// GetTransaction fetches the raw transaction payload by id. The shape is
	// indexer-specific; the verifier normalizes it.
	GetTransaction(ctx context.Context, txID string) (map[string]any, error)
	// GetAddressScript resolves the locking script (hex) controlling the
	// given address, observed from its unspent outputs.
	GetAddressScript(ctx context.Context, address string) (string, error)
}
