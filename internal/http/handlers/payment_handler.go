package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/http/handlers/common"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/service"
	"github.com/ignatzorin/workdeal-backend/internal/storage"
)

// PaymentHandler — HTTP слой платёжного конвейера. Пользовательские
// ручки ограничены подачей чека и просмотром, верификация доступна
// только администратору.
type PaymentHandler struct {
	payments *service.PaymentService
	proofs   *storage.ProofStorage
}

func NewPaymentHandler(payments *service.PaymentService, proofs *storage.ProofStorage) *PaymentHandler {
	return &PaymentHandler{payments: payments, proofs: proofs}
}

// Create обрабатывает POST /payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		RecipientID *uuid.UUID `json:"recipient_id"`
		ContractID  *uuid.UUID `json:"contract_id"`
		JobID       *uuid.UUID `json:"job_id"`
		Amount      float64    `json:"amount" binding:"required,gt=0"`
		Currency    string     `json:"currency"`
		Type        string     `json:"type" binding:"required"`
		Commission  float64    `json:"commission"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		PayerID:     userID,
		RecipientID: req.RecipientID,
		ContractID:  req.ContractID,
		JobID:       req.JobID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Type:        req.Type,
		Commission:  req.Commission,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// Get обрабатывает GET /payments/:id.
func (h *PaymentHandler) Get(c *gin.Context) {
	paymentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// List обрабатывает GET /payments — платежи текущего пользователя.
func (h *PaymentHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	payments, err := h.payments.ListByPayer(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// SubmitProof обрабатывает POST /payments/:id/proof — загрузку чека.
func (h *PaymentHandler) SubmitProof(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	paymentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "поле file обязательно")
		return
	}
	if file.Size == 0 {
		common.RespondBadRequest(c, "файл не может быть пустым")
		return
	}

	src, err := file.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer src.Close()

	// Тип файла проверяется по магическим байтам, а не по расширению.
	head := make([]byte, 512)
	n, err := src.Read(head)
	if err != nil && err != io.EOF {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}
	if _, err := storage.SniffContentType(head[:n]); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if seeker, ok := src.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			_ = c.Error(err)
			return
		}
	}

	relativePath, _, err := h.proofs.Save(c.Request.Context(), paymentID, file.Filename, src)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var comment *string
	if v := c.PostForm("comment"); v != "" {
		comment = &v
	}

	payment, err := h.payments.SubmitProof(c.Request.Context(), paymentID, userID, relativePath, comment)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// adminAction объединяет однотипные админ-переходы платежа.
type adminActionReq struct {
	Notes *string `json:"notes"`
}

// Approve обрабатывает POST /admin/payments/:id/approve.
func (h *PaymentHandler) Approve(c *gin.Context) {
	h.runAdminAction(c, h.payments.ApproveProof)
}

// VerifyEscrow обрабатывает POST /admin/payments/:id/verify-escrow.
func (h *PaymentHandler) VerifyEscrow(c *gin.Context) {
	h.runAdminAction(c, h.payments.VerifyEscrow)
}

// ConfirmPayout обрабатывает POST /admin/payments/:id/confirm-payout.
func (h *PaymentHandler) ConfirmPayout(c *gin.Context) {
	h.runAdminAction(c, h.payments.ConfirmForPayout)
}

// ReleasePayout обрабатывает POST /admin/payments/:id/release.
func (h *PaymentHandler) ReleasePayout(c *gin.Context) {
	h.runAdminAction(c, h.payments.ReleasePayout)
}

// CancelReject обрабатывает POST /admin/payments/:id/cancel-reject.
func (h *PaymentHandler) CancelReject(c *gin.Context) {
	h.runAdminAction(c, h.payments.CancelReject)
}

func (h *PaymentHandler) runAdminAction(c *gin.Context, action func(ctx context.Context, paymentID, actorID uuid.UUID, notes *string) (*models.Payment, error)) {
	actorID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	paymentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req adminActionReq
	_ = c.ShouldBindJSON(&req)

	payment, err := action(c.Request.Context(), paymentID, actorID, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// Reject обрабатывает POST /admin/payments/:id/reject.
func (h *PaymentHandler) Reject(c *gin.Context) {
	actorID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	paymentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string  `json:"reason" binding:"required"`
		Notes  *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "причина отклонения обязательна")
		return
	}

	payment, err := h.payments.RejectPayment(c.Request.Context(), paymentID, actorID, req.Reason, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// GetProof обрабатывает GET /admin/payments/:id/proof — чек, ожидающий
// проверки администратором.
func (h *PaymentHandler) GetProof(c *gin.Context) {
	paymentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	proof, err := h.payments.GetPendingProof(c.Request.Context(), paymentID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, proof)
}

// ListAudit обрабатывает GET /admin/payments/:id/audit.
func (h *PaymentHandler) ListAudit(c *gin.Context) {
	paymentID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	audit, err := h.payments.ListAudit(c.Request.Context(), paymentID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"audit": audit})
}

// GetBalance обрабатывает GET /payments/balance.
func (h *PaymentHandler) GetBalance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	balance, err := h.payments.GetBalance(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, balance)
}
