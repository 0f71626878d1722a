package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/defilive/vaultd/internal/core/application"
	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

type handler struct {
	svc       *application.Service
	publicURL string
}

type donateRequest struct {
	TransactionID      json.RawMessage `json:"transactionId"`
	DonorAddress       string          `json:"donorAddress"`
	TransactionPayload any             `json:"transactionPayload"`
	ClaimedAmount      float64         `json:"claimedAmount"`
}

type createChallengeRequest struct {
	ID               string  `json:"defiId"`
	Title            string  `json:"title"`
	Goal             float64 `json:"goal"`
	Deadline         int64   `json:"deadline"`
	RecipientAddress string  `json:"recipientAddress"`
	VaultAddress     string  `json:"vaultAddress"`
	Network          string  `json:"network"`
	NetworkRPC       string  `json:"networkRpc"`
}

func (h *handler) createChallenge(c *gin.Context) {
	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewErrorf(domain.ErrInvalidRequest, "invalid request body: %v", err))
		return
	}

	challenge, err := h.svc.CreateChallenge(c.Request.Context(), application.CreateChallengeRequest{
		ID:               req.ID,
		Title:            req.Title,
		Goal:             decimal.NewFromFloat(req.Goal),
		Deadline:         time.UnixMilli(req.Deadline),
		RecipientAddress: req.RecipientAddress,
		VaultAddress:     req.VaultAddress,
		Network:          req.Network,
		NetworkRPC:       req.NetworkRPC,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, domain.NewChallengeView(*challenge))
}

func (h *handler) getChallenge(c *gin.Context) {
	challenge, err := h.svc.GetChallenge(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.NewChallengeView(*challenge))
}

func (h *handler) listChallenges(c *gin.Context) {
	challenges, err := h.svc.ListChallenges(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	views := make(map[string]domain.ChallengeView, len(challenges))
	for _, challenge := range challenges {
		views[challenge.ID] = domain.NewChallengeView(challenge)
	}
	c.JSON(http.StatusOK, views)
}

func (h *handler) donate(c *gin.Context) {
	var req donateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewErrorf(domain.ErrInvalidRequest, "invalid request body: %v", err))
		return
	}

	result, err := h.svc.Donate(c.Request.Context(), application.DonateRequest{
		ChallengeID:        c.Param("id"),
		TransactionID:      rawToString(req.TransactionID),
		DonorAddress:       req.DonorAddress,
		TransactionPayload: req.TransactionPayload,
		ClaimedAmount:      decimal.NewFromFloat(req.ClaimedAmount),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"verifiedAmount": result.VerifiedAmount.InexactFloat64(),
		"currentAmount":  result.CurrentAmount.InexactFloat64(),
		"goal":           result.Goal.InexactFloat64(),
		"goalReached":    result.GoalReached,
		"method":         result.Method,
	})
}

func (h *handler) validate(c *gin.Context) {
	challenge, err := h.svc.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"challenge": domain.NewChallengeView(*challenge),
	})
}

func (h *handler) refuse(c *gin.Context) {
	challenge, err := h.svc.Refuse(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"challenge": domain.NewChallengeView(*challenge),
	})
}

func (h *handler) refund(c *gin.Context) {
	challenge, err := h.svc.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"challenge": domain.NewChallengeView(*challenge),
	})
}

// qrCode renders the donation-page URL for a challenge as a scannable PNG.
func (h *handler) qrCode(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.GetChallenge(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	donationURL := h.publicURL + "/donate/" + id
	png, err := qrcode.Encode(donationURL, qrcode.Medium, 256)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// rawToString keeps an object-shaped transactionId as its JSON text so the
// processor can unwrap it; a plain string is unquoted.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func writeError(c *gin.Context, err error) {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		// nolint:all
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal",
			"message": err.Error(),
		})
		return
	}

	body := gin.H{
		"success": false,
		"error":   string(domainErr.Kind),
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	c.JSON(statusForKind(domainErr.Kind, domainErr), body)
}

func statusForKind(kind domain.ErrorKind, err *domain.Error) int {
	switch kind {
	case domain.ErrMissingTransactionID,
		domain.ErrMissingDonorAddress,
		domain.ErrInvalidRequest,
		domain.ErrInvalidOutputs:
		return http.StatusBadRequest
	case domain.ErrChallengeNotFound:
		return http.StatusNotFound
	case domain.ErrTransactionNotFound:
		// lookup exhaustion caused by an unreachable upstream is a gateway
		// problem, not a client one
		if _, upstream := err.Details["cause"]; upstream {
			return http.StatusBadGateway
		}
		return http.StatusNotFound
	case domain.ErrDuplicateTransaction,
		domain.ErrChallengeExists,
		domain.ErrChallengeNotActive,
		domain.ErrChallengeExpired,
		domain.ErrGoalAlreadyReached,
		domain.ErrInvalidTransition:
		return http.StatusConflict
	case domain.ErrNoVaultOutput, domain.ErrAmountUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
