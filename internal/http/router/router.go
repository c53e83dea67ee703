package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/tasknory-backend/internal/config"
	"github.com/ignatzorin/tasknory-backend/internal/domain/valueobject"
	"github.com/ignatzorin/tasknory-backend/internal/http/handlers"
	"github.com/ignatzorin/tasknory-backend/internal/http/handlers/common"
	"github.com/ignatzorin/tasknory-backend/internal/http/middleware"
	"github.com/ignatzorin/tasknory-backend/internal/service"
)

// Handlers набор хэндлеров API. Proof может быть nil, если файлы отдаёт объектное хранилище.
type Handlers struct {
	Health        *handlers.HealthHandler
	Wallet        *handlers.WalletHandler
	Hires         *handlers.HireHandler
	Milestones    *handlers.MilestoneHandler
	Disputes      *handlers.DisputeHandler
	Holds         *handlers.HoldHandler
	Contracts     *handlers.ContractHandler
	Notifications *handlers.NotificationHandler
	WS            *handlers.WSHandler
	Proof         *handlers.ProofHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager, limiterStore limiter.Store) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler(common.RespondAppError))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.Proof != nil {
		r.GET("/files", h.Proof.Download)
	}

	api := r.Group("/api")
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokenManager))

	// Лимит только на операции, двигающие деньги
	moneyLimit := middleware.RateLimitMiddleware(limiterStore, cfg.RateLimitLimit, cfg.RateLimitPeriod)
	id := middleware.UUIDValidator("id")

	wallet := protected.Group("/wallet")
	{
		wallet.GET("", h.Wallet.GetWallet)
		wallet.GET("/transactions", h.Wallet.ListTransactions)
		wallet.POST("/transfer", moneyLimit, h.Wallet.Transfer)
	}

	jobs := protected.Group("/jobs")
	{
		jobs.POST("", h.Hires.CreateJob)
		jobs.POST("/:id/hire", id, moneyLimit, h.Hires.SecureHire)
	}

	hires := protected.Group("/hires")
	{
		hires.GET("", h.Hires.ListHires)
		hires.GET("/:id", id, h.Hires.GetHire)
		hires.POST("/:id/holds", id, moneyLimit, h.Hires.EnsureHolds)
		hires.POST("/:id/final", id, h.Hires.SubmitFinal)
		hires.POST("/:id/confirm", id, moneyLimit, h.Hires.ConfirmWork)
		hires.POST("/:id/disputes", id, h.Disputes.Raise)
	}

	milestones := protected.Group("/milestones")
	{
		milestones.POST("/:id/submit", id, h.Milestones.Submit)
		milestones.POST("/:id/approve", id, moneyLimit, h.Milestones.Approve)
		milestones.POST("/:id/reject", id, h.Milestones.Reject)
	}

	protected.GET("/disputes/:id/proof", id, h.Disputes.ProofURL)

	contracts := protected.Group("/contracts")
	{
		contracts.POST("", h.Contracts.Create)
		contracts.GET("/:id/details", id, h.Contracts.RevealDetails)
		contracts.POST("/:id/details", id, h.Contracts.SubmitDetails)
		contracts.POST("/:id/sent", id, h.Contracts.MarkSent)
		contracts.POST("/:id/received", id, h.Contracts.MarkReceived)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", h.Notifications.List)
		notifications.GET("/unread-count", h.Notifications.CountUnread)
		notifications.POST("/:id/read", id, h.Notifications.MarkAsRead)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(valueobject.RoleAdmin))
	{
		admin.POST("/accounts", h.Wallet.OpenAccount)
		admin.POST("/ledger/credit", moneyLimit, h.Wallet.Credit)
		admin.POST("/ledger/debit", moneyLimit, h.Wallet.Debit)

		admin.POST("/jobs/:id/approve", id, h.Hires.ApproveJob)
		admin.POST("/matches", h.Hires.CreateMatch)
		admin.POST("/finals/:id/review", id, h.Hires.ReviewFinal)

		admin.GET("/disputes", h.Disputes.ListOpen)
		admin.POST("/disputes/:id/resolve", id, h.Disputes.Resolve)
		admin.POST("/disputes/:id/reject", id, h.Disputes.Reject)

		admin.POST("/holds/:id/release", id, h.Holds.Release)
		admin.POST("/holds/:id/refund", id, h.Holds.Refund)

		admin.GET("/contracts/awaiting", h.Contracts.ListAwaiting)
		admin.POST("/contracts/:id/release", id, h.Contracts.ConfirmRelease)
		admin.POST("/payment-details/:id/verify", id, h.Contracts.VerifyDetails)

		admin.POST("/sweeps/stale-holds", h.Holds.SweepStaleHolds)
		admin.POST("/sweeps/unconfirmed-work", h.Holds.SweepUnconfirmedWork)

		admin.GET("/presence/:id", id, h.WS.Presence)
	}

	return r
}
