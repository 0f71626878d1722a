package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/core/ports"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type VerifyMethod string

const (
	// MethodEmbeddedOutputs: the wallet handed over the full transaction and
	// its outputs were matched against the vault script.
	MethodEmbeddedOutputs VerifyMethod = "embedded_outputs"
	// MethodIndexerLookup: the transaction was fetched from the read API and
	// matched the same way.
	MethodIndexerLookup VerifyMethod = "indexer_lookup"
	// MethodRelaxedClaim: a client-declared amount was accepted without any
	// on-chain check. Only permitted on test networks.
	MethodRelaxedClaim VerifyMethod = "relaxed_claim"
)

type VerifyRequest struct {
	TransactionID      string
	TransactionPayload any
	ClaimedAmount      decimal.Decimal
	VaultAddress       string
}

type VerifyResult struct {
	Amount decimal.Decimal
	Method VerifyMethod
}

// TxVerifier turns an untrusted "I paid the vault" claim into a verified
// amount. Strategy, in order of trust: embedded outputs, indexer lookup,
// and (test networks only) the client-declared amount.
type TxVerifier struct {
	indexer     ports.TxIndexer
	testNetwork bool

	// vault script configured up front; resolved through the indexer and
	// cached per address when empty.
	vaultScript string
	scriptMtx   sync.Mutex
	scriptCache map[string]string

	lookupAttempts  int
	lookupBaseDelay time.Duration
	lookupDelayStep time.Duration
}

const (
	defaultLookupAttempts  = 5
	defaultLookupBaseDelay = 2 * time.Second
	defaultLookupDelayStep = time.Second
)

func NewTxVerifier(indexer ports.TxIndexer, vaultScript string, testNetwork bool) *TxVerifier {
	return &TxVerifier{
		indexer:         indexer,
		testNetwork:     testNetwork,
		vaultScript:     strings.ToLower(vaultScript),
		scriptCache:     make(map[string]string),
		lookupAttempts:  defaultLookupAttempts,
		lookupBaseDelay: defaultLookupBaseDelay,
		lookupDelayStep: defaultLookupDelayStep,
	}
}

// WithLookupPolicy overrides the retry budget for the remote lookup.
func (v *TxVerifier) WithLookupPolicy(attempts int, baseDelay, delayStep time.Duration) *TxVerifier {
	v.lookupAttempts = attempts
	v.lookupBaseDelay = baseDelay
	v.lookupDelayStep = delayStep
	return v
}

func (v *TxVerifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, domain.NewError(domain.ErrMissingTransactionID, "transaction id is required")
	}

	// Tier 1: outputs embedded in the wallet payload.
	if req.TransactionPayload != nil {
		outputs, err := normalizeTxPayload(req.TransactionPayload)
		switch {
		case err == nil:
			return v.verifyOutputs(ctx, req, outputs, MethodEmbeddedOutputs)
		case errors.Is(err, errNoOutputs):
			// fall through to the remote lookup
		default:
			return nil, err
		}
	}

	// Tier 2: fetch the transaction from the read API.
	result, lookupErr := v.verifyViaIndexer(ctx, req)
	if lookupErr == nil {
		return result, nil
	}
	if !domain.IsKind(lookupErr, domain.ErrTransactionNotFound) {
		return nil, lookupErr
	}

	// Tier 3: relaxed trust, test networks only. No on-chain protection
	// against a forged claim, so the method is flagged on the result.
	if v.testNetwork {
		if result, ok := v.relaxedResult(req); ok {
			log.WithFields(log.Fields{
				"txId":   req.TransactionID,
				"amount": result.Amount,
			}).Warn("accepted client-declared amount without on-chain verification")
			return result, nil
		}
	}
	return nil, lookupErr
}

func (v *TxVerifier) verifyViaIndexer(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var lastErr error
	for attempt := 0; attempt < v.lookupAttempts; attempt++ {
		if attempt > 0 {
			delay := v.lookupBaseDelay + time.Duration(attempt)*v.lookupDelayStep
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		payload, err := v.indexer.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			lastErr = err
			if !errors.Is(err, ports.ErrTxNotIndexed) {
				log.WithError(err).WithField("txId", req.TransactionID).
					Warn("transaction lookup failed, retrying")
			}
			continue
		}

		outputs, err := normalizeTxPayload(payload)
		if err != nil {
			if errors.Is(err, errNoOutputs) {
				return nil, domain.NewError(domain.ErrInvalidOutputs, "indexer returned a transaction without outputs")
			}
			return nil, err
		}
		return v.verifyOutputs(ctx, req, outputs, MethodIndexerLookup)
	}

	rejection := domain.NewErrorf(
		domain.ErrTransactionNotFound,
		"transaction %s not found after %d attempts", req.TransactionID, v.lookupAttempts,
	)
	if lastErr != nil {
		rejection = rejection.WithDetail("cause", lastErr.Error())
	}
	return nil, rejection
}

// verifyOutputs attributes outputs to the vault by exact locking-script
// match. Address strings are a display form of the same script and are not
// trusted for attribution.
func (v *TxVerifier) verifyOutputs(
	ctx context.Context, req VerifyRequest, outputs []txOutput, method VerifyMethod,
) (*VerifyResult, error) {
	script, err := v.resolveVaultScript(ctx, req.VaultAddress)
	if err != nil {
		return nil, err
	}

	var totalSompi uint64
	found := make([]string, 0, len(outputs))
	for _, out := range outputs {
		found = append(found, out.ScriptHex)
		if out.ScriptHex == script {
			totalSompi += out.AmountSompi
		}
	}

	if totalSompi == 0 {
		return nil, domain.NewErrorf(
			domain.ErrNoVaultOutput,
			"no output pays the vault script",
		).WithDetail("expectedScript", script).WithDetail("foundScripts", found)
	}

	amount := sompiToKAS(totalSompi)
	if !amount.IsPositive() {
		return nil, domain.NewError(domain.ErrAmountUnavailable, "verified amount is not positive")
	}
	return &VerifyResult{Amount: amount, Method: method}, nil
}

func (v *TxVerifier) relaxedResult(req VerifyRequest) (*VerifyResult, bool) {
	if amount, ok := extractClaimedAmount(req.TransactionPayload); ok {
		return &VerifyResult{Amount: amount, Method: MethodRelaxedClaim}, true
	}
	if req.ClaimedAmount.IsPositive() {
		return &VerifyResult{Amount: req.ClaimedAmount, Method: MethodRelaxedClaim}, true
	}
	return nil, false
}

func (v *TxVerifier) resolveVaultScript(ctx context.Context, vaultAddress string) (string, error) {
	if v.vaultScript != "" {
		return v.vaultScript, nil
	}

	v.scriptMtx.Lock()
	defer v.scriptMtx.Unlock()
	if script, ok := v.scriptCache[vaultAddress]; ok {
		return script, nil
	}

	script, err := v.indexer.GetAddressScript(ctx, vaultAddress)
	if err != nil {
		return "", domain.NewErrorf(
			domain.ErrAmountUnavailable,
			"cannot resolve vault script for %s: %v", vaultAddress, err,
		)
	}
	script = strings.ToLower(script)
	v.scriptCache[vaultAddress] = script
	return script, nil
}
