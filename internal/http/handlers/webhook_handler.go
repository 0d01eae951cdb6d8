package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/provider"
	"github.com/ignatzorin/workdeal-backend/internal/service"
)

// WebhookHandler принимает подтверждения оплаты от платёжного провайдера.
// Подпись проверяется до разбора тела, повторная доставка идемпотентна.
type WebhookHandler struct {
	payments *service.PaymentService
	pricing  *service.PricingService
	jobs     *service.JobService
	secret   string
}

func NewWebhookHandler(payments *service.PaymentService, pricing *service.PricingService, jobs *service.JobService, secret string) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		pricing:  pricing,
		jobs:     jobs,
		secret:   secret,
	}
}

type providerEvent struct {
	Event     string    `json:"event"`
	PaymentID uuid.UUID `json:"payment_id"`
	TxID      string    `json:"tx_id"`
	Amount    float64   `json:"amount"`
}

// HandleProviderEvent обрабатывает POST /webhooks/provider.
func (h *WebhookHandler) HandleProviderEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать тело запроса"})
		return
	}

	signature := c.GetHeader("X-Provider-Signature")
	if signature == "" || !provider.VerifySignature(h.secret, body, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "подпись не совпадает"})
		return
	}

	var event providerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный payload"})
		return
	}

	if event.Event != "payment.confirmed" {
		// Неизвестные события подтверждаем, чтобы провайдер не повторял их.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	payment, err := h.payments.HandleProviderConfirmation(c.Request.Context(), event.PaymentID, event.TxID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.applyFollowups(c, payment)

	c.JSON(http.StatusOK, gin.H{"status": "ok", "payment": payment})
}

// applyFollowups двигает связанные сущности после подтверждения оплаты:
// доплата за повышение бюджета применяет новую цену, взнос за
// публикацию открывает задание. Ошибки здесь не откатывают платёж.
func (h *WebhookHandler) applyFollowups(c *gin.Context, payment *models.Payment) {
	if payment.JobID == nil {
		return
	}

	switch payment.Type {
	case models.PaymentTypeBudgetRaise:
		if _, err := h.pricing.ApplyPriceIncrease(c.Request.Context(), *payment.JobID, payment.ID); err != nil {
			logger.Financial("job", "pending_payment", "").WithError(err).
				WithField("job_id", *payment.JobID).
				Warn("webhook: не удалось применить повышение бюджета")
		}
	case models.PaymentTypePublication:
		if _, err := h.jobs.ConfirmPublication(c.Request.Context(), *payment.JobID, payment.ID); err != nil {
			logger.Log.WithError(err).WithField("job_id", *payment.JobID).
				Warn("webhook: не удалось открыть задание после оплаты публикации")
		}
	}
}
