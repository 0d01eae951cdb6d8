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

// JobHandler — HTTP слой заданий: жизненный цикл, распределение
// бюджета между исполнителями и изменение цены.
type JobHandler struct {
	jobs        *service.JobService
	allocations *service.AllocationService
	pricing     *service.PricingService
}

func NewJobHandler(jobs *service.JobService, allocations *service.AllocationService, pricing *service.PricingService) *JobHandler {
	return &JobHandler{jobs: jobs, allocations: allocations, pricing: pricing}
}

// Create обрабатывает POST /jobs.
func (h *JobHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Title       string  `json:"title" binding:"required"`
		Description string  `json:"description"`
		Price       float64 `json:"price" binding:"required,gt=0"`
		MaxWorkers  int     `json:"max_workers" binding:"required,min=1,max=5"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), service.CreateJobInput{
		ClientID:    userID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		MaxWorkers:  req.MaxWorkers,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// Get обрабатывает GET /jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Publish обрабатывает POST /jobs/:id/publish.
func (h *JobHandler) Publish(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, payment, err := h.jobs.PublishJob(c.Request.Context(), jobID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := gin.H{"job": job}
	if payment != nil {
		resp["payment"] = payment
	}
	c.JSON(http.StatusOK, resp)
}

// SelectWorker обрабатывает POST /jobs/:id/workers.
func (h *JobHandler) SelectWorker(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		WorkerID  uuid.UUID `json:"worker_id" binding:"required"`
		Amount    float64   `json:"amount" binding:"required,gt=0"`
		StartDate time.Time `json:"start_date" binding:"required"`
		EndDate   time.Time `json:"end_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.jobs.SelectWorker(c.Request.Context(), service.SelectWorkerInput{
		JobID:     jobID,
		ActorID:   userID,
		WorkerID:  req.WorkerID,
		Amount:    req.Amount,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// Start обрабатывает POST /jobs/:id/start.
func (h *JobHandler) Start(c *gin.Context) {
	h.runStatusAction(c, h.jobs.StartJob)
}

// Complete обрабатывает POST /jobs/:id/complete.
func (h *JobHandler) Complete(c *gin.Context) {
	h.runStatusAction(c, h.jobs.CompleteJob)
}

// Cancel обрабатывает POST /jobs/:id/cancel.
func (h *JobHandler) Cancel(c *gin.Context) {
	h.runStatusAction(c, h.jobs.CancelJob)
}

// SetAllocations обрабатывает PUT /jobs/:id/allocations.
func (h *JobHandler) SetAllocations(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Allocations []struct {
			WorkerID uuid.UUID `json:"worker_id" binding:"required"`
			Amount   float64   `json:"amount" binding:"required,gt=0"`
		} `json:"allocations" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	entries := make([]service.AllocationEntry, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		entries = append(entries, service.AllocationEntry{WorkerID: a.WorkerID, Amount: a.Amount})
	}

	job, err := h.allocations.SetWorkerAllocations(c.Request.Context(), jobID, userID, entries)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// RemoveWorker обрабатывает DELETE /jobs/:id/workers/:workerId.
func (h *JobHandler) RemoveWorker(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	workerID, err := common.ParseUUIDParam(c, "workerId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	redistribute := c.Query("redistribute") != "false"

	job, err := h.allocations.RemoveWorker(c.Request.Context(), jobID, workerID, userID, redistribute)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ProposePriceIncrease обрабатывает POST /jobs/:id/price/increase.
func (h *JobHandler) ProposePriceIncrease(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		NewPrice float64 `json:"new_price" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, payment, err := h.pricing.ProposePriceIncrease(c.Request.Context(), jobID, userID, req.NewPrice)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := gin.H{"job": job}
	if payment != nil {
		resp["payment"] = payment
	}
	c.JSON(http.StatusOK, resp)
}

// ProposePriceDecrease обрабатывает POST /jobs/:id/price/decrease.
func (h *JobHandler) ProposePriceDecrease(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		NewPrice float64 `json:"new_price" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.pricing.ProposePriceDecrease(c.Request.Context(), jobID, userID, req.NewPrice)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// VotePriceDecrease обрабатывает POST /jobs/:id/price/decrease/vote.
func (h *JobHandler) VotePriceDecrease(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "поле accept обязательно")
		return
	}

	job, err := h.pricing.VoteOnPriceDecrease(c.Request.Context(), jobID, userID, *req.Accept)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// CancelBudgetChange обрабатывает POST /jobs/:id/price/cancel.
func (h *JobHandler) CancelBudgetChange(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.pricing.CancelBudgetChange(c.Request.Context(), jobID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) runStatusAction(c *gin.Context, action func(ctx context.Context, jobID, actorID uuid.UUID) (*models.Job, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := action(c.Request.Context(), jobID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, job)
}
