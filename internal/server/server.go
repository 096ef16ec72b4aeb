package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/auth"
	"giftrelay/internal/config"
	"giftrelay/internal/exchange"
	"giftrelay/internal/gifttask"
	"giftrelay/internal/ledger"
	"giftrelay/internal/reclaimer"
	"giftrelay/internal/signature"
)

// Deps are the handlers and collaborators the router is built from.
type Deps struct {
	Config    *config.Config
	DB        Pinger
	Verifier  *signature.Verifier
	Ledger    *ledger.Handler
	Exchange  *exchange.Handler
	Tasks     *gifttask.Handler
	Worker    *gifttask.WorkerHandler
	Reclaimer *reclaimer.Handler
}

type Server struct {
	router *gin.Engine
	http   *http.Server
}

func New(d Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", Health(d.DB))
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	// Delivery agents authenticate every request with an HMAC signature.
	worker := router.Group("/api/gift-tasks")
	worker.Use(signature.Middleware(d.Verifier))
	{
		worker.GET("", d.Worker.ListPending)
		worker.POST("/claim", d.Worker.ClaimNext)
		worker.POST("/:id/claim", d.Worker.Claim)
		worker.POST("/:id/complete", d.Worker.Complete)
		worker.POST("/:id/fail", d.Worker.Fail)
	}

	authMiddleware := auth.AuthMiddleware(d.Config.JWTSecret)
	protected := router.Group("/api")
	protected.Use(authMiddleware, RateLimitMiddleware(d.Config.RateLimitRPS, d.Config.RateLimitBurst))
	{
		protected.GET("/wallet", d.Ledger.GetBalance)
		protected.GET("/wallet/transactions", d.Ledger.ListTransactions)
		protected.GET("/gifts/catalog", d.Exchange.Catalog)
		protected.POST("/gifts/exchange", d.Exchange.Exchange)
		protected.GET("/gifts/tasks", d.Tasks.ListMine)
		protected.GET("/gifts/tasks/:id", d.Tasks.GetMine)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/accounts/:id/grant", d.Ledger.Grant)
		admin.GET("/accounts/:id/audit", d.Ledger.Audit)
		admin.POST("/gift-tasks/reclaim", d.Reclaimer.Sweep)
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              ":" + d.Config.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Idempotency-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
