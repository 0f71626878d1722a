package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"
)

const challengeDir = "challenge"

type challengeRepository struct {
	store *badgerhold.Store
}

// NewChallengeRepository opens the challenge store. An empty baseDir opens
// an in-memory store, which is the default deployment mode.
func NewChallengeRepository(baseDir string, logger badger.Logger) (domain.ChallengeRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, challengeDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open challenge store: %s", err)
	}
	return &challengeRepository{store}, nil
}

func (r *challengeRepository) GetAll(ctx context.Context) ([]domain.Challenge, error) {
	var dataList []challengeData
	if err := r.store.Find(&dataList, nil); err != nil {
		return nil, fmt.Errorf("failed to get all challenges: %w", err)
	}

	challenges := make([]domain.Challenge, 0, len(dataList))
	for _, data := range dataList {
		challenge, err := data.toChallenge()
		if err != nil {
			return nil, fmt.Errorf("failed to convert data to challenge: %w", err)
		}
		challenges = append(challenges, challenge)
	}
	return challenges, nil
}

func (r *challengeRepository) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	var data challengeData
	err := r.store.Get(id, &data)
	if err == badgerhold.ErrNotFound {
		return nil, domain.NewErrorf(domain.ErrChallengeNotFound, "challenge %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	challenge, err := data.toChallenge()
	if err != nil {
		return nil, fmt.Errorf("failed to convert data to challenge: %w", err)
	}
	return &challenge, nil
}

func (r *challengeRepository) Add(ctx context.Context, challenge domain.Challenge) error {
	err := r.store.Insert(challenge.ID, toChallengeData(challenge))
	if err == badgerhold.ErrKeyExists {
		return domain.NewErrorf(domain.ErrChallengeExists, "challenge %s already exists", challenge.ID)
	}
	return err
}

// Update runs fn against the stored record and persists the result inside
// one badger transaction, so concurrent updates never interleave.
func (r *challengeRepository) Update(
	ctx context.Context, id string, fn func(*domain.Challenge) error,
) (*domain.Challenge, error) {
	var updated *domain.Challenge
	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var data challengeData
		err := r.store.TxGet(tx, id, &data)
		if err == badgerhold.ErrNotFound {
			return domain.NewErrorf(domain.ErrChallengeNotFound, "challenge %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get challenge: %w", err)
		}

		challenge, err := data.toChallenge()
		if err != nil {
			return fmt.Errorf("failed to convert data to challenge: %w", err)
		}
		if err := fn(&challenge); err != nil {
			return err
		}

		updated = &challenge
		return r.store.TxUpdate(tx, id, toChallengeData(challenge))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *challengeRepository) Close() {
	// nolint:all
	r.store.Close()
}

type challengeData struct {
	ID               string
	Title            string
	Goal             string
	CurrentAmount    string
	Status           string
	Deadline         int64
	Donations        []donationData
	RecipientAddress string
	VaultAddress     string
	Network          string
	NetworkRPC       string
	PendingPayout    *pendingPayoutData
	PayoutRecorded   bool
	PayoutRecordedAt int64
	RefundRecorded   bool
	RefundRecordedAt int64
}

type donationData struct {
	Amount        string
	DonorAddress  string
	Timestamp     int64
	TransactionID string
}

type pendingPayoutData struct {
	Amount          string
	Overdonation    string
	Fee             string
	RefundAmount    string
	RefundRecipient string
	ComputedAt      int64
}

func toChallengeData(c domain.Challenge) challengeData {
	donations := make([]donationData, 0, len(c.Donations))
	for _, d := range c.Donations {
		donations = append(donations, donationData{
			Amount:        d.Amount.String(),
			DonorAddress:  d.DonorAddress,
			Timestamp:     d.Timestamp.UnixMilli(),
			TransactionID: d.TransactionID,
		})
	}

	var pending *pendingPayoutData
	if c.PendingPayout != nil {
		pending = &pendingPayoutData{
			Amount:          c.PendingPayout.Amount.String(),
			Overdonation:    c.PendingPayout.Overdonation.String(),
			Fee:             c.PendingPayout.Fee.String(),
			RefundAmount:    c.PendingPayout.RefundAmount.String(),
			RefundRecipient: c.PendingPayout.RefundRecipient,
			ComputedAt:      c.PendingPayout.ComputedAt.UnixMilli(),
		}
	}

	data := challengeData{
		ID:               c.ID,
		Title:            c.Title,
		Goal:             c.Goal.String(),
		CurrentAmount:    c.CurrentAmount.String(),
		Status:           string(c.Status),
		Deadline:         c.Deadline.UnixMilli(),
		Donations:        donations,
		RecipientAddress: c.RecipientAddress,
		VaultAddress:     c.VaultAddress,
		Network:          c.Network,
		NetworkRPC:       c.NetworkRPC,
		PendingPayout:    pending,
		PayoutRecorded:   c.PayoutRecorded,
		RefundRecorded:   c.RefundRecorded,
	}
	if c.PayoutRecordedAt != nil {
		data.PayoutRecordedAt = c.PayoutRecordedAt.UnixMilli()
	}
	if c.RefundRecordedAt != nil {
		data.RefundRecordedAt = c.RefundRecordedAt.UnixMilli()
	}
	return data
}

func (d *challengeData) toChallenge() (domain.Challenge, error) {
	goal, err := decimal.NewFromString(d.Goal)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("invalid goal amount: %w", err)
	}
	current, err := decimal.NewFromString(d.CurrentAmount)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("invalid current amount: %w", err)
	}

	donations := make([]domain.Donation, 0, len(d.Donations))
	for _, dd := range d.Donations {
		amount, err := decimal.NewFromString(dd.Amount)
		if err != nil {
			return domain.Challenge{}, fmt.Errorf("invalid donation amount: %w", err)
		}
		donations = append(donations, domain.Donation{
			Amount:        amount,
			DonorAddress:  dd.DonorAddress,
			Timestamp:     time.UnixMilli(dd.Timestamp),
			TransactionID: dd.TransactionID,
		})
	}

	var pending *domain.PendingPayout
	if d.PendingPayout != nil {
		pending = &domain.PendingPayout{
			RefundRecipient: d.PendingPayout.RefundRecipient,
			ComputedAt:      time.UnixMilli(d.PendingPayout.ComputedAt),
		}
		if pending.Amount, err = decimal.NewFromString(d.PendingPayout.Amount); err != nil {
			return domain.Challenge{}, fmt.Errorf("invalid payout amount: %w", err)
		}
		if pending.Overdonation, err = decimal.NewFromString(d.PendingPayout.Overdonation); err != nil {
			return domain.Challenge{}, fmt.Errorf("invalid overdonation amount: %w", err)
		}
		if pending.Fee, err = decimal.NewFromString(d.PendingPayout.Fee); err != nil {
			return domain.Challenge{}, fmt.Errorf("invalid fee amount: %w", err)
		}
		if pending.RefundAmount, err = decimal.NewFromString(d.PendingPayout.RefundAmount); err != nil {
			return domain.Challenge{}, fmt.Errorf("invalid refund amount: %w", err)
		}
	}

	challenge := domain.Challenge{
		ID:               d.ID,
		Title:            d.Title,
		Goal:             goal,
		CurrentAmount:    current,
		Status:           domain.ChallengeStatus(d.Status),
		Deadline:         time.UnixMilli(d.Deadline),
		Donations:        donations,
		RecipientAddress: d.RecipientAddress,
		VaultAddress:     d.VaultAddress,
		Network:          d.Network,
		NetworkRPC:       d.NetworkRPC,
		PendingPayout:    pending,
		PayoutRecorded:   d.PayoutRecorded,
		RefundRecorded:   d.RefundRecorded,
	}
	if d.PayoutRecordedAt > 0 {
		at := time.UnixMilli(d.PayoutRecordedAt)
		challenge.PayoutRecordedAt = &at
	}
	if d.RefundRecordedAt > 0 {
		at := time.UnixMilli(d.RefundRecordedAt)
		challenge.RefundRecordedAt = &at
	}
	return challenge, nil
}
