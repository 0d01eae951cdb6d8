package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/workdeal-backend/internal/config"
	"github.com/ignatzorin/workdeal-backend/internal/http/handlers"
	"github.com/ignatzorin/workdeal-backend/internal/http/middleware"
	"github.com/ignatzorin/workdeal-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	jobHandler *handlers.JobHandler,
	contractHandler *handlers.ContractHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	notificationHandler *handlers.NotificationHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Webhook провайдера подписан HMAC, авторизация JWT не нужна.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		webhooks.POST("/provider", webhookHandler.HandleProviderEvent)
	}

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		// Задания и распределение бюджета
		protected.POST("/jobs", jobHandler.Create)
		protected.GET("/jobs/:id", middleware.UUIDValidator("id"), jobHandler.Get)
		protected.POST("/jobs/:id/publish", middleware.UUIDValidator("id"), jobHandler.Publish)
		protected.POST("/jobs/:id/start", middleware.UUIDValidator("id"), jobHandler.Start)
		protected.POST("/jobs/:id/complete", middleware.UUIDValidator("id"), jobHandler.Complete)
		protected.POST("/jobs/:id/cancel", middleware.UUIDValidator("id"), jobHandler.Cancel)
		protected.POST("/jobs/:id/workers", middleware.UUIDValidator("id"), jobHandler.SelectWorker)
		protected.DELETE("/jobs/:id/workers/:workerId", middleware.UUIDValidator("id"), middleware.UUIDValidator("workerId"), jobHandler.RemoveWorker)
		protected.PUT("/jobs/:id/allocations", middleware.UUIDValidator("id"), jobHandler.SetAllocations)

		// Изменение цены
		protected.POST("/jobs/:id/price/increase", middleware.UUIDValidator("id"), jobHandler.ProposePriceIncrease)
		protected.POST("/jobs/:id/price/decrease", middleware.UUIDValidator("id"), jobHandler.ProposePriceDecrease)
		protected.POST("/jobs/:id/price/decrease/vote", middleware.UUIDValidator("id"), jobHandler.VotePriceDecrease)
		protected.POST("/jobs/:id/price/cancel", middleware.UUIDValidator("id"), jobHandler.CancelBudgetChange)

		// Контракты
		protected.GET("/contracts/:id", middleware.UUIDValidator("id"), contractHandler.Get)
		protected.POST("/contracts/:id/accept", middleware.UUIDValidator("id"), contractHandler.Accept)
		protected.POST("/contracts/:id/terms/accept", middleware.UUIDValidator("id"), contractHandler.AcceptTerms)
		protected.POST("/contracts/:id/pairing/code", middleware.UUIDValidator("id"), contractHandler.GeneratePairingCode)
		protected.POST("/contracts/:id/pairing/confirm", middleware.UUIDValidator("id"), contractHandler.ConfirmPairing)
		protected.POST("/contracts/:id/complete", middleware.UUIDValidator("id"), contractHandler.ConfirmCompletion)
		protected.POST("/contracts/:id/cancel", middleware.UUIDValidator("id"), contractHandler.Cancel)
		protected.POST("/contracts/:id/extension", middleware.UUIDValidator("id"), contractHandler.RequestExtension)
		protected.POST("/contracts/:id/extension/respond", middleware.UUIDValidator("id"), contractHandler.RespondExtension)
		protected.GET("/contracts/:id/price-history", middleware.UUIDValidator("id"), contractHandler.ListPriceHistory)

		// Платежи
		protected.POST("/payments", paymentHandler.Create)
		protected.GET("/payments", paymentHandler.List)
		protected.GET("/payments/balance", paymentHandler.GetBalance)
		protected.GET("/payments/:id", middleware.UUIDValidator("id"), paymentHandler.Get)
		protected.POST("/payments/:id/proof", middleware.UUIDValidator("id"), paymentHandler.SubmitProof)

		// Споры
		protected.POST("/disputes", disputeHandler.Create)
		protected.GET("/disputes", disputeHandler.List)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.AddMessage)
		protected.GET("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.ListMessages)
		protected.GET("/disputes/:id/logs", middleware.UUIDValidator("id"), disputeHandler.ListLogs)

		// Уведомления
		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread", notificationHandler.CountUnread)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	}

	// Админ-ручки: верификация платежей и разрешение споров.
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.POST("/payments/:id/approve", middleware.UUIDValidator("id"), paymentHandler.Approve)
		admin.POST("/payments/:id/reject", middleware.UUIDValidator("id"), paymentHandler.Reject)
		admin.POST("/payments/:id/verify-escrow", middleware.UUIDValidator("id"), paymentHandler.VerifyEscrow)
		admin.POST("/payments/:id/confirm-payout", middleware.UUIDValidator("id"), paymentHandler.ConfirmPayout)
		admin.POST("/payments/:id/release", middleware.UUIDValidator("id"), paymentHandler.ReleasePayout)
		admin.POST("/payments/:id/cancel-reject", middleware.UUIDValidator("id"), paymentHandler.CancelReject)
		admin.GET("/payments/:id/proof", middleware.UUIDValidator("id"), paymentHandler.GetProof)
		admin.GET("/payments/:id/audit", middleware.UUIDValidator("id"), paymentHandler.ListAudit)

		admin.POST("/disputes/:id/review", middleware.UUIDValidator("id"), disputeHandler.TakeInReview)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)

		admin.POST("/users/:id/tier", middleware.UUIDValidator("id"), authHandler.SetTier)
	}

	return r
}
