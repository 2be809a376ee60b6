package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// EvidencePrefix - URL, под которым DisputeHandler отдаёт файлы доказательств.
const EvidencePrefix = "/api/evidence"

// Handlers - набор хэндлеров API.
type Handlers struct {
	Health        *handlers.HealthHandler
	Payments      *handlers.PaymentHandler
	Transactions  *handlers.TransactionHandler
	Disputes      *handlers.DisputeHandler
	Wallets       *handlers.WalletHandler
	Withdrawals   *handlers.WithdrawalHandler
	Notifications *handlers.NotificationHandler
	WS            *handlers.WSHandler
}

func SetupRouter(cfg *config.Config, tokenManager *service.TokenManager, h Handlers) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")

	// Публичные маршруты: страница оплаты, возврат из шлюза и вебхук
	public := api.Group("/")
	public.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		public.GET("/pay/verify", h.Payments.VerifyPayment)
		public.GET("/pay/:id", middleware.UUIDValidator("id"), h.Payments.Checkout)
		public.POST("/payments/webhook", h.Payments.Webhook)
	}

	if h.WS != nil {
		api.GET("/ws", h.WS.Handle)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/payment-links", h.Payments.CreateLink)
		protected.POST("/pay/:id/initiate", middleware.UUIDValidator("id"), h.Payments.InitiatePayment)

		protected.GET("/transactions", h.Transactions.List)
		protected.GET("/transactions/:id", middleware.UUIDValidator("id"), h.Transactions.Get)
		protected.POST("/transactions/:id/accept", middleware.UUIDValidator("id"), h.Transactions.Accept)
		protected.POST("/transactions/:id/reject", middleware.UUIDValidator("id"), h.Transactions.Reject)
		protected.POST("/transactions/:id/ship", middleware.UUIDValidator("id"), h.Transactions.Ship)
		protected.POST("/transactions/:id/confirm-delivery", middleware.UUIDValidator("id"), h.Transactions.ConfirmDelivery)
		protected.POST("/transactions/:id/complete", middleware.UUIDValidator("id"), h.Transactions.Complete)

		// Споры
		protected.POST("/transactions/:id/dispute", middleware.UUIDValidator("id"), h.Disputes.Open)
		protected.GET("/transactions/:id/dispute", middleware.UUIDValidator("id"), h.Disputes.GetByTransaction)
		protected.GET("/disputes", h.Disputes.ListMine)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), h.Disputes.Get)
		protected.POST("/disputes/:id/messages", middleware.UUIDValidator("id"), h.Disputes.AddMessage)
		protected.POST("/disputes/:id/evidence", middleware.UUIDValidator("id"), h.Disputes.AddEvidence)
		protected.POST("/disputes/:id/evidence/upload", middleware.UUIDValidator("id"), h.Disputes.UploadEvidence)
		protected.GET("/evidence/:id/:name", middleware.UUIDValidator("id"), h.Disputes.DownloadEvidence)

		// Кошелёк и вывод средств
		protected.GET("/wallet", h.Wallets.GetWallet)
		protected.GET("/wallet/entries", h.Wallets.ListEntries)
		protected.POST("/wallet/topup/initiate", h.Wallets.InitiateTopUp)
		protected.POST("/wallet/topup", h.Wallets.TopUp)

		protected.GET("/withdrawals/quote", h.Withdrawals.Quote)
		protected.POST("/withdrawals", h.Withdrawals.CreateWithdrawal)
		protected.GET("/withdrawals", h.Withdrawals.ListWithdrawals)
		protected.GET("/withdrawals/:id", middleware.UUIDValidator("id"), h.Withdrawals.GetWithdrawal)

		protected.GET("/notifications", h.Notifications.ListNotifications)
		protected.GET("/notifications/unread/count", h.Notifications.CountUnread)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), h.Notifications.MarkAsRead)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.GET("/disputes", h.Disputes.ListAll)
		admin.POST("/disputes/:id/status", middleware.UUIDValidator("id"), h.Disputes.Move)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), h.Disputes.Resolve)

		admin.GET("/withdrawals", h.Withdrawals.ListPending)
		admin.POST("/withdrawals/:id/complete", middleware.UUIDValidator("id"), h.Withdrawals.Complete)
		admin.POST("/withdrawals/:id/reject", middleware.UUIDValidator("id"), h.Withdrawals.Reject)
	}

	return r
}
