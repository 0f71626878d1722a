package domain

import "time"

type EventType string

const (
	EventUpdate             EventType = "update"
	EventChallengeUpdate    EventType = "challenge_update"
	EventChallengeCompleted EventType = "challenge_completed"
	EventChallengeValidated EventType = "challenge_validated"
	EventChallengeRefused   EventType = "challenge_refused"
	EventChallengeRefunded  EventType = "challenge_refunded"
	EventAllChallenges      EventType = "all_challenges"
)

// Event is the payload pushed to real-time listeners. Amounts are plain
// numbers on the wire; the authoritative decimals live on the Challenge.
type Event struct {
	Type           EventType                `json:"type"`
	ChallengeID    string                   `json:"defiId,omitempty"`
	Amount         float64                  `json:"amount,omitempty"`
	Goal           float64                  `json:"goal,omitempty"`
	Completed      bool                     `json:"completed,omitempty"`
	DonationsCount int                      `json:"donationsCount,omitempty"`
	TimeRemaining  int64                    `json:"timeRemaining,omitempty"`
	Challenge      *ChallengeView           `json:"challenge,omitempty"`
	Challenges     map[string]ChallengeView `json:"challenges,omitempty"`
}

// ChallengeView is the JSON shape served to clients, shared by the REST
// snapshot endpoints and the event channel.
type ChallengeView struct {
	ID               string             `json:"defiId"`
	Title            string             `json:"title"`
	Goal             float64            `json:"goal"`
	CurrentAmount    float64            `json:"currentAmount"`
	Status           ChallengeStatus    `json:"status"`
	Deadline         int64              `json:"deadline"`
	Donations        []DonationView     `json:"donations"`
	RecipientAddress string             `json:"recipientAddress"`
	VaultAddress     string             `json:"vaultAddress"`
	Network          string             `json:"network"`
	NetworkRPC       string             `json:"networkRpc"`
	PendingPayout    *PendingPayoutView `json:"pendingPayout,omitempty"`
	PayoutRecorded   bool               `json:"payoutRecorded"`
	RefundRecorded   bool               `json:"refundRecorded"`
}

type DonationView struct {
	Amount        float64 `json:"amount"`
	DonorAddress  string  `json:"donorAddress"`
	Timestamp     int64   `json:"timestamp"`
	TransactionID string  `json:"txId"`
}

type PendingPayoutView struct {
	Amount          float64 `json:"amount"`
	Overdonation    float64 `json:"overdonation"`
	Fee             float64 `json:"fee"`
	RefundAmount    float64 `json:"refundAmount"`
	RefundRecipient string  `json:"refundTo"`
	ComputedAt      int64   `json:"computedAt"`
}

func NewChallengeView(c Challenge) ChallengeView {
	donations := make([]DonationView, 0, len(c.Donations))
	for _, d := range c.Donations {
		donations = append(donations, DonationView{
			Amount:        d.Amount.InexactFloat64(),
			DonorAddress:  d.DonorAddress,
			Timestamp:     d.Timestamp.UnixMilli(),
			TransactionID: d.TransactionID,
		})
	}

	var pending *PendingPayoutView
	if c.PendingPayout != nil {
		pending = &PendingPayoutView{
			Amount:          c.PendingPayout.Amount.InexactFloat64(),
			Overdonation:    c.PendingPayout.Overdonation.InexactFloat64(),
			Fee:             c.PendingPayout.Fee.InexactFloat64(),
			RefundAmount:    c.PendingPayout.RefundAmount.InexactFloat64(),
			RefundRecipient: c.PendingPayout.RefundRecipient,
			ComputedAt:      c.PendingPayout.ComputedAt.UnixMilli(),
		}
	}

	return ChallengeView{
		ID:               c.ID,
		Title:            c.Title,
		Goal:             c.Goal.InexactFloat64(),
		CurrentAmount:    c.CurrentAmount.InexactFloat64(),
		Status:           c.Status,
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
}

func NewAllChallengesEvent(challenges []Challenge) Event {
	views := make(map[string]ChallengeView, len(challenges))
	for _, c := range challenges {
		views[c.ID] = NewChallengeView(c)
	}
	return Event{Type: EventAllChallenges, Challenges: views}
}

func NewUpdateEvent(c Challenge, now time.Time) Event {
	return Event{
		Type:           EventUpdate,
		ChallengeID:    c.ID,
		Amount:         c.CurrentAmount.InexactFloat64(),
		Goal:           c.Goal.InexactFloat64(),
		Completed:      c.GoalReached(),
		DonationsCount: len(c.Donations),
		TimeRemaining:  int64(c.TimeRemaining(now).Seconds()),
	}
}

func NewChallengeEvent(eventType EventType, c Challenge) Event {
	view := NewChallengeView(c)
	return Event{Type: eventType, ChallengeID: c.ID, Challenge: &view}
}
