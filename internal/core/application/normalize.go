package application

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Wallet extensions hand us transaction data in several shapes: a JSON
// string, an object nested under "transaction" or "verboseData", or a flat
// object. Everything funnels through normalizeTxPayload into one canonical
// outputs list before any verification logic runs.

// errNoOutputs means the payload parsed fine but carries no outputs array,
// so the embedded-output path does not apply.
var errNoOutputs = errors.New("payload has no outputs")

type txOutput struct {
	AmountSompi uint64
	ScriptHex   string
	Address     string
}

func normalizeTxPayload(raw any) ([]txOutput, error) {
	payload, err := unwrapPayload(raw)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errNoOutputs
	}

	rawOutputs, ok := payload["outputs"]
	if !ok {
		return nil, errNoOutputs
	}
	list, ok := rawOutputs.([]any)
	if !ok {
		return nil, domain.NewError(domain.ErrInvalidOutputs, "outputs is not an array")
	}

	outputs := make([]txOutput, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, domain.NewErrorf(domain.ErrInvalidOutputs, "output %d is not an object", i)
		}
		out, err := parseOutput(m)
		if err != nil {
			return nil, domain.NewErrorf(domain.ErrInvalidOutputs, "output %d: %v", i, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// unwrapPayload peels string serialization and transaction/verboseData
// nesting until it reaches the object that should carry the outputs.
func unwrapPayload(raw any) (map[string]any, error) {
	const maxDepth = 4

	for depth := 0; depth < maxDepth; depth++ {
		switch v := raw.(type) {
		case nil:
			return nil, nil
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				return nil, nil
			}
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
				return nil, domain.NewErrorf(domain.ErrInvalidOutputs, "payload is not valid JSON: %v", err)
			}
			raw = parsed
		case map[string]any:
			if _, ok := v["outputs"]; ok {
				return v, nil
			}
			if nested, ok := v["transaction"]; ok {
				raw = nested
				continue
			}
			if nested, ok := v["verboseData"]; ok {
				raw = nested
				continue
			}
			return v, nil
		default:
			return nil, domain.NewErrorf(domain.ErrInvalidOutputs, "unsupported payload type %T", raw)
		}
	}
	return nil, domain.NewError(domain.ErrInvalidOutputs, "payload nesting too deep")
}

func parseOutput(m map[string]any) (txOutput, error) {
	amount, err := parseSompi(firstPresent(m, "amount", "value"))
	if err != nil {
		return txOutput{}, err
	}

	script, err := parseScript(firstPresent(m, "scriptPublicKey", "script_public_key", "scriptPubKey"))
	if err != nil {
		return txOutput{}, err
	}

	address, _ := firstPresent(
		m, "scriptPublicKeyAddress", "script_public_key_address", "address",
	).(string)

	return txOutput{AmountSompi: amount, ScriptHex: script, Address: address}, nil
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseSompi(v any) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, errors.New("missing amount")
	case float64:
		if n < 0 {
			return 0, errors.New("negative amount")
		}
		return uint64(n), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, errors.New("amount is not a valid integer")
		}
		return parsed, nil
	case json.Number:
		parsed, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, errors.New("amount is not a valid integer")
		}
		return parsed, nil
	default:
		return 0, errors.New("unsupported amount type")
	}
}

// parseScript accepts both the flat hex form and the object form
// {"version": 0, "scriptPublicKey": "<hex>"} produced by node RPCs.
func parseScript(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", errors.New("missing locking script")
	case string:
		return strings.ToLower(strings.TrimSpace(s)), nil
	case map[string]any:
		nested, _ := firstPresent(s, "scriptPublicKey", "script_public_key", "hex").(string)
		if nested == "" {
			return "", errors.New("locking script object has no script hex")
		}
		return strings.ToLower(strings.TrimSpace(nested)), nil
	default:
		return "", errors.New("unsupported locking script type")
	}
}

// resolveTransactionID unwraps a transaction id that arrived as a serialized
// transaction object instead of a plain string.
func resolveTransactionID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return trimmed
	}
	for _, key := range []string{"transactionId", "txId", "transaction_id", "id"} {
		if id, ok := obj[key].(string); ok && id != "" {
			return id
		}
	}
	for _, key := range []string{"transaction", "verboseData"} {
		if nested, ok := obj[key].(map[string]any); ok {
			for _, idKey := range []string{"transactionId", "txId", "transaction_id", "id"} {
				if id, ok := nested[idKey].(string); ok && id != "" {
					return id
				}
			}
		}
	}
	return ""
}

// extractClaimedAmount pulls a client-declared amount out of the payload for
// the relaxed-trust path: "amount" in whole coins, "value"/"totalAmount" in
// sompi.
func extractClaimedAmount(raw any) (decimal.Decimal, bool) {
	payload, err := unwrapPayload(raw)
	if err != nil || payload == nil {
		return decimal.Zero, false
	}

	if v, ok := payload["amount"]; ok {
		if amount, ok := toDecimal(v); ok && amount.IsPositive() {
			return amount, true
		}
	}
	for _, key := range []string{"value", "totalAmount"} {
		if v, ok := payload[key]; ok {
			if sompi, err := parseSompi(v); err == nil && sompi > 0 {
				return sompiToKAS(sompi), true
			}
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// 1 KAS = 10^8 sompi.
func sompiToKAS(sompi uint64) decimal.Decimal {
	return decimal.NewFromUint64(sompi).Shift(-8)
}
