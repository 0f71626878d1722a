package kaspaindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/defilive/vaultd/internal/core/ports"
)

// service implements ports.TxIndexer against a Kaspa REST API
// (api.kaspa.org and compatible deployments).
type service struct {
	baseURL string
	client  *http.Client
}

func NewService(baseURL string) ports.TxIndexer {
	return &service{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *service) GetTransaction(ctx context.Context, txID string) (map[string]any, error) {
	endpoint := s.baseURL + "/transactions/" + url.PathEscape(txID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ports.ErrTxNotIndexed
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return payload, nil
}

// GetAddressScript observes the locking script of an address from its
// unspent outputs.
func (s *service) GetAddressScript(ctx context.Context, address string) (string, error) {
	endpoint := s.baseURL + "/addresses/" + url.PathEscape(address) + "/utxos"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get address utxos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var utxos []struct {
		UtxoEntry struct {
			ScriptPublicKey struct {
				ScriptPublicKey string `json:"scriptPublicKey"`
			} `json:"scriptPublicKey"`
		} `json:"utxoEntry"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&utxos); err != nil {
		return "", fmt.Errorf("failed to parse utxos: %w", err)
	}

	for _, utxo := range utxos {
		if script := utxo.UtxoEntry.ScriptPublicKey.ScriptPublicKey; script != "" {
			return script, nil
		}
	}
	return "", fmt.Errorf("no utxos found for address %s", address)
}
