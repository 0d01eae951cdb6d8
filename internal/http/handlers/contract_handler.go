package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/http/handlers/common"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/service"
)

// ContractHandler — HTTP слой жизненного цикла контракта: принятие,
// условия, сопряжение, завершение и продление.
type ContractHandler struct {
	contracts *service.ContractService
}

func NewContractHandler(contracts *service.ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// Get обрабатывает GET /contracts/:id.
func (h *ContractHandler) Get(c *gin.Context) {
	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), contractID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Accept обрабатывает POST /contracts/:id/accept.
func (h *ContractHandler) Accept(c *gin.Context) {
	h.runAction(c, h.contracts.AcceptContract)
}

// AcceptTerms обрабатывает POST /contracts/:id/terms/accept.
func (h *ContractHandler) AcceptTerms(c *gin.Context) {
	h.runAction(c, h.contracts.AcceptTerms)
}

// ConfirmCompletion обрабатывает POST /contracts/:id/complete.
func (h *ContractHandler) ConfirmCompletion(c *gin.Context) {
	h.runAction(c, h.contracts.ConfirmCompletion)
}

// GeneratePairingCode обрабатывает POST /contracts/:id/pairing/code.
func (h *ContractHandler) GeneratePairingCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, code, err := h.contracts.GeneratePairingCode(c.Request.Context(), contractID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract, "pairing_code": code})
}

// ConfirmPairing обрабатывает POST /contracts/:id/pairing/confirm.
func (h *ContractHandler) ConfirmPairing(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "код сопряжения обязателен")
		return
	}

	contract, err := h.contracts.ConfirmPairing(c.Request.Context(), contractID, userID, req.Code)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Cancel обрабатывает POST /contracts/:id/cancel.
func (h *ContractHandler) Cancel(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	contract, err := h.contracts.CancelContract(c.Request.Context(), contractID, userID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// RequestExtension обрабатывает POST /contracts/:id/extension.
func (h *ContractHandler) RequestExtension(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		NewEndDate  time.Time `json:"new_end_date" binding:"required"`
		ExtraAmount *float64  `json:"extra_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.contracts.RequestExtension(c.Request.Context(), contractID, userID, req.NewEndDate, req.ExtraAmount)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// RespondExtension обрабатывает POST /contracts/:id/extension/respond.
func (h *ContractHandler) RespondExtension(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "поле approve обязательно")
		return
	}

	contract, err := h.contracts.RespondExtension(c.Request.Context(), contractID, userID, *req.Approve)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// ListPriceHistory обрабатывает GET /contracts/:id/price-history.
func (h *ContractHandler) ListPriceHistory(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	history, err := h.contracts.ListPriceHistory(c.Request.Context(), contractID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"price_history": history})
}

func (h *ContractHandler) runAction(c *gin.Context, action func(ctx context.Context, contractID, userID uuid.UUID) (*models.Contract, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	contractID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := action(c.Request.Context(), contractID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}
