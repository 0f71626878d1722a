package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type ServiceOptions struct {
	VaultAddress     string
	RecipientAddress string
	Network          string
	NetworkRPC       string
	SweepInterval    time.Duration
	// Now is the clock; tests inject a fake one to drive expiry.
	Now func() time.Time
}

// Service owns the challenge lifecycle: it is the only path by which
// donations are appended and statuses advance. Verification may run
// concurrently for many in-flight requests, but everything from the
// duplicate check to the append executes under a per-challenge lock.
type Service struct {
	repo      domain.ChallengeRepository
	verifier  *TxVerifier
	payouts   ports.PayoutExecutor
	scheduler ports.SchedulerService
	broker    *EventBroker
	opts      ServiceOptions

	locks sync.Map // challenge id -> *sync.Mutex
}

func NewService(
	repoManager ports.RepoManager,
	verifier *TxVerifier,
	payouts ports.PayoutExecutor,
	schedulerSvc ports.SchedulerService,
	opts ServiceOptions,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:      repoManager.Challenges(),
		verifier:  verifier,
		payouts:   payouts,
		scheduler: schedulerSvc,
		broker:    NewEventBroker(),
		opts:      opts,
	}
}

func (s *Service) Broker() *EventBroker {
	return s.broker
}

func (s *Service) Start() error {
	if s.scheduler == nil || s.opts.SweepInterval <= 0 {
		return nil
	}
	if err := s.scheduler.ScheduleRecurring(s.opts.SweepInterval, func() {
		s.SweepExpired(context.Background())
	}); err != nil {
		return err
	}
	s.scheduler.Start()
	return nil
}

func (s *Service) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

type CreateChallengeRequest struct {
	ID               string
	Title            string
	Goal             decimal.Decimal
	Deadline         time.Time
	RecipientAddress string
	VaultAddress     string
	Network          string
	NetworkRPC       string
}

func (s *Service) CreateChallenge(ctx context.Context, req CreateChallengeRequest) (*domain.Challenge, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, domain.NewError(domain.ErrInvalidRequest, "challenge id is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.NewError(domain.ErrInvalidRequest, "title is required")
	}
	if !req.Goal.IsPositive() {
		return nil, domain.NewError(domain.ErrInvalidRequest, "goal must be positive")
	}
	now := s.opts.Now()
	if !req.Deadline.After(now) {
		return nil, domain.NewError(domain.ErrInvalidRequest, "deadline must be in the future")
	}

	challenge := domain.Challenge{
		ID:               strings.TrimSpace(req.ID),
		Title:            req.Title,
		Goal:             req.Goal,
		CurrentAmount:    decimal.Zero,
		Status:           domain.StatusActive,
		Deadline:         req.Deadline,
		Donations:        []domain.Donation{},
		RecipientAddress: defaultString(req.RecipientAddress, s.opts.RecipientAddress),
		VaultAddress:     defaultString(req.VaultAddress, s.opts.VaultAddress),
		Network:          defaultString(req.Network, s.opts.Network),
		NetworkRPC:       defaultString(req.NetworkRPC, s.opts.NetworkRPC),
	}

	if err := s.repo.Add(ctx, challenge); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"defiId": challenge.ID,
		"goal":   challenge.Goal,
	}).Info("challenge created")
	s.broker.Publish(domain.NewChallengeEvent(domain.EventChallengeUpdate, challenge))
	return &challenge, nil
}

func (s *Service) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListChallenges(ctx context.Context) ([]domain.Challenge, error) {
	return s.repo.GetAll(ctx)
}

// Snapshot builds the full all_challenges event sent to new listeners.
func (s *Service) Snapshot(ctx context.Context) (domain.Event, error) {
	challenges, err := s.repo.GetAll(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.NewAllChallengesEvent(challenges), nil
}

type DonateRequest struct {
	ChallengeID        string
	TransactionID      string
	DonorAddress       string
	TransactionPayload any
	ClaimedAmount      decimal.Decimal
}

type DonateResult struct {
	VerifiedAmount decimal.Decimal
	CurrentAmount  decimal.Decimal
	Goal           decimal.Decimal
	GoalReached    bool
	Method         VerifyMethod
}

// Donate processes one donation claim end to end. Verification runs before
// the duplicate check on purpose: a forged duplicate claim is indistinguishable
// by timing from a legitimate retry, and a transaction is always confirmed
// valid before being indexed.
func (s *Service) Donate(ctx context.Context, req DonateRequest) (*DonateResult, error) {
	challenge, err := s.repo.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	txID := resolveTransactionID(req.TransactionID)
	if txID == "" {
		return nil, domain.NewError(domain.ErrMissingTransactionID, "transaction id is required")
	}
	donor := strings.TrimSpace(req.DonorAddress)
	if donor == "" {
		return nil, domain.NewError(domain.ErrMissingDonorAddress, "donor address is required")
	}

	verified, err := s.verifier.Verify(ctx, VerifyRequest{
		TransactionID:      txID,
		TransactionPayload: req.TransactionPayload,
		ClaimedAmount:      req.ClaimedAmount,
		VaultAddress:       challenge.VaultAddress,
	})
	if err != nil {
		return nil, err
	}

	mtx := s.lockFor(req.ChallengeID)
	mtx.Lock()
	defer mtx.Unlock()

	now := s.opts.Now()
	current, err := s.repo.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	if current.HasDonation(txID) {
		return nil, domain.NewErrorf(domain.ErrDuplicateTransaction, "transaction %s already recorded", txID)
	}

	if current.Status == domain.StatusActive && current.IsExpired(now) {
		if err := s.expireLocked(ctx, current.ID, now); err != nil {
			log.WithError(err).WithField("defiId", current.ID).Error("failed to expire challenge")
		}
		return nil, domain.NewError(domain.ErrChallengeExpired, "challenge deadline has passed")
	}

	updated, err := s.repo.Update(ctx, req.ChallengeID, func(c *domain.Challenge) error {
		if c.HasDonation(txID) {
			return domain.NewErrorf(domain.ErrDuplicateTransaction, "transaction %s already recorded", txID)
		}
		if c.Status != domain.StatusActive {
			return domain.NewErrorf(domain.ErrChallengeNotActive, "challenge is not active").
				WithDetail("status", string(c.Status))
		}
		if c.GoalReached() {
			return domain.NewError(domain.ErrGoalAlreadyReached, "goal already reached")
		}
		c.AddDonation(domain.Donation{
			Amount:        verified.Amount,
			DonorAddress:  donor,
			Timestamp:     now,
			TransactionID: txID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"defiId": updated.ID,
		"txId":   txID,
		"amount": verified.Amount,
		"total":  updated.CurrentAmount,
		"method": verified.Method,
	}).Info("donation accepted")
	s.broker.Publish(domain.NewUpdateEvent(*updated, now))

	goalReached := updated.GoalReached()
	if goalReached {
		if err := s.completeGoalLocked(ctx, updated.ID, now); err != nil {
			log.WithError(err).WithField("defiId", updated.ID).Error("failed to complete goal")
		}
	}

	return &DonateResult{
		VerifiedAmount: verified.Amount,
		CurrentAmount:  updated.CurrentAmount,
		Goal:           updated.Goal,
		GoalReached:    goalReached,
		Method:         verified.Method,
	}, nil
}

// Validate releases escrow to the recipient: the goal amount is paid out and
// the overdonation split computed at completion is settled.
func (s *Service) Validate(ctx context.Context, id string) (*domain.Challenge, error) {
	mtx := s.lockFor(id)
	mtx.Lock()
	defer mtx.Unlock()

	now := s.opts.Now()
	updated, err := s.repo.Update(ctx, id, func(c *domain.Challenge) error {
		if err := c.SetStatus(domain.StatusValidated); err != nil {
			return err
		}
		c.PayoutRecorded = true
		recordedAt := now
		c.PayoutRecordedAt = &recordedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	pending := updated.PendingPayout
	payout := domain.PayoutRequest{
		ID:               uuid.NewString(),
		ChallengeID:      updated.ID,
		RecipientAddress: updated.RecipientAddress,
		Amount:           updated.Goal,
		CreatedAt:        now,
	}
	if pending != nil {
		payout.FeeReserve = pending.Fee
	}
	if err := s.payouts.ExecutePayout(ctx, payout); err != nil {
		log.WithError(err).WithField("defiId", updated.ID).Error("payout execution failed")
	}

	if pending != nil && pending.RefundAmount.IsPositive() {
		refund := domain.RefundRequest{
			ID:          uuid.NewString(),
			ChallengeID: updated.ID,
			Reason:      domain.RefundReasonOverdonation,
			Entries: []domain.RefundEntry{{
				DonorAddress: pending.RefundRecipient,
				Amount:       pending.RefundAmount,
			}},
			CreatedAt: now,
		}
		if err := s.payouts.ExecuteRefund(ctx, refund); err != nil {
			log.WithError(err).WithField("defiId", updated.ID).Error("overdonation refund execution failed")
		}
	}

	log.WithField("defiId", updated.ID).Info("challenge validated, payout recorded")
	s.broker.Publish(domain.NewChallengeEvent(domain.EventChallengeValidated, *updated))
	return updated, nil
}

// Refuse returns every recorded donation to its donor.
func (s *Service) Refuse(ctx context.Context, id string) (*domain.Challenge, error) {
	mtx := s.lockFor(id)
	mtx.Lock()
	defer mtx.Unlock()

	now := s.opts.Now()
	var refund domain.RefundRequest
	updated, err := s.repo.Update(ctx, id, func(c *domain.Challenge) error {
		if err := c.SetStatus(domain.StatusRefused); err != nil {
			return err
		}
		refund = refundAllRequest(c, domain.RefundReasonRefused, now)
		c.RefundRecorded = true
		recordedAt := now
		c.RefundRecordedAt = &recordedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.payouts.ExecuteRefund(ctx, refund); err != nil {
		log.WithError(err).WithField("defiId", updated.ID).Error("refund execution failed")
	}

	log.WithField("defiId", updated.ID).Info("challenge refused, refunds recorded")
	s.broker.Publish(domain.NewChallengeEvent(domain.EventChallengeRefused, *updated))
	return updated, nil
}

// Refund manually drives the deadline-expiry flow for a challenge whose
// deadline has passed (or that is stuck in expired without refund
// bookkeeping).
func (s *Service) Refund(ctx context.Context, id string) (*domain.Challenge, error) {
	mtx := s.lockFor(id)
	mtx.Lock()
	defer mtx.Unlock()

	now := s.opts.Now()
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	eligible := (current.Status == domain.StatusActive && current.IsExpired(now)) ||
		(current.Status == domain.StatusExpired && !current.RefundRecorded)
	if !eligible {
		return nil, domain.NewErrorf(
			domain.ErrInvalidTransition,
			"challenge is not eligible for refund",
		).WithDetail("status", string(current.Status))
	}

	if err := s.expireLocked(ctx, id, now); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// SweepExpired advances every active challenge whose deadline has passed.
// Idempotent: an already refunded challenge is left alone.
func (s *Service) SweepExpired(ctx context.Context) {
	challenges, err := s.repo.GetAll(ctx)
	if err != nil {
		log.WithError(err).Error("expiry sweep: cannot list challenges")
		return
	}

	now := s.opts.Now()
	for _, c := range challenges {
		needsExpiry := c.Status == domain.StatusActive && c.IsExpired(now)
		needsRefund := c.Status == domain.StatusExpired && !c.RefundRecorded
		if !needsExpiry && !needsRefund {
			continue
		}

		mtx := s.lockFor(c.ID)
		mtx.Lock()
		current, err := s.repo.Get(ctx, c.ID)
		if err == nil {
			stillNeedsExpiry := current.Status == domain.StatusActive && current.IsExpired(now)
			stillNeedsRefund := current.Status == domain.StatusExpired && !current.RefundRecorded
			if stillNeedsExpiry || stillNeedsRefund {
				if err := s.expireLocked(ctx, c.ID, now); err != nil {
					log.WithError(err).WithField("defiId", c.ID).Error("expiry sweep failed")
				}
			}
		}
		mtx.Unlock()
	}
}

// completeGoalLocked runs the goal-completion transition. Caller holds the
// challenge lock.
func (s *Service) completeGoalLocked(ctx context.Context, id string, now time.Time) error {
	updated, err := s.repo.Update(ctx, id, func(c *domain.Challenge) error {
		if err := c.SetStatus(domain.StatusAwaitingValidation); err != nil {
			return err
		}
		c.PendingPayout = c.ComputePendingPayout(now)
		return nil
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"defiId":       updated.ID,
		"total":        updated.CurrentAmount,
		"overdonation": updated.PendingPayout.Overdonation,
	}).Info("goal reached, awaiting validation")
	s.broker.Publish(domain.NewChallengeEvent(domain.EventChallengeCompleted, *updated))
	return nil
}

// expireLocked runs the deadline path active -> expired -> refunded as one
// atomic update, recording refund bookkeeping on the way. Caller holds the
// challenge lock and has checked eligibility.
func (s *Service) expireLocked(ctx context.Context, id string, now time.Time) error {
	var refund domain.RefundRequest
	updated, err := s.repo.Update(ctx, id, func(c *domain.Challenge) error {
		if c.Status == domain.StatusActive {
			if err := c.SetStatus(domain.StatusExpired); err != nil {
				return err
			}
		}
		if c.Status != domain.StatusExpired || c.RefundRecorded {
			return domain.NewErrorf(domain.ErrInvalidTransition, "challenge already processed").
				WithDetail("status", string(c.Status))
		}
		refund = refundAllRequest(c, domain.RefundReasonExpired, now)
		c.RefundRecorded = true
		recordedAt := now
		c.RefundRecordedAt = &recordedAt
		return c.SetStatus(domain.StatusRefunded)
	})
	if err != nil {
		return err
	}

	if err := s.payouts.ExecuteRefund(ctx, refund); err != nil {
		log.WithError(err).WithField("defiId", updated.ID).Error("refund execution failed")
	}

	log.WithFields(log.Fields{
		"defiId":    updated.ID,
		"donations": len(refund.Entries),
		"total":     refund.Total(),
	}).Info("challenge expired, refunds recorded")
	s.broker.Publish(domain.NewChallengeEvent(domain.EventChallengeRefunded, *updated))
	return nil
}

func refundAllRequest(c *domain.Challenge, reason domain.RefundReason, now time.Time) domain.RefundRequest {
	entries := make([]domain.RefundEntry, 0, len(c.Donations))
	for _, d := range c.Donations {
		entries = append(entries, domain.RefundEntry{
			DonorAddress:  d.DonorAddress,
			Amount:        d.Amount,
			TransactionID: d.TransactionID,
		})
	}
	return domain.RefundRequest{
		ID:          uuid.NewString(),
		ChallengeID: c.ID,
		Reason:      reason,
		Entries:     entries,
		CreatedAt:   now,
	}
}

func (s *Service) lockFor(id string) *sync.Mutex {
	mtx, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mtx.(*sync.Mutex)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
