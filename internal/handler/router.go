package handler

import (
	"net/http"

	"homeledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRouter(h *Handler, cfg *config.Config, log *logrus.Logger) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(RateLimitMiddleware(cfg.Server.RateLimit))
	api.Use(AuthMiddleware([]byte(cfg.Auth.JWTSecret)))
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.CreateAccount)
			accounts.GET("/:id", h.GetAccount)
			accounts.GET("/:id/transactions", h.ListTransactions)
		}

		transactions := api.Group("/transactions")
		{
			transactions.POST("", h.PostTransaction)
			transactions.DELETE("/:id", h.ReverseTransaction)
		}

		api.POST("/transfers", h.Transfer)

		loans := api.Group("/loans")
		{
			loans.POST("", h.OriginateLoan)
			loans.GET("/:id", h.GetLoan)
			loans.GET("/:id/schedule", h.ListSchedule)
			loans.POST("/:id/emis/:number/pay", h.PayEMI)
			loans.POST("/:id/prepayments", h.PrepayLoan)
			loans.GET("/:id/prepayments", h.ListPrepayments)
		}

		cards := api.Group("/cards")
		{
			cards.POST("", h.CreateCard)
			cards.GET("/:id", h.GetCard)
			cards.POST("/:id/charges", h.ChargeCard)
			cards.POST("/:id/payments", h.ApplyPayment)
			cards.GET("/:id/payments", h.ListPayments)
			cards.POST("/:id/statements", h.GenerateStatement)
			cards.GET("/:id/statements", h.ListStatements)
		}
	}

	return r
}
