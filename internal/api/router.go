package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/venturus/cdm-teller/internal/flow"
	"github.com/venturus/cdm-teller/internal/middleware"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/service"
	ws "github.com/venturus/cdm-teller/internal/websocket"
)

// Router wires the HTTP surface.
type Router struct {
	engine            *gin.Engine
	db                *gorm.DB
	services          *service.Services
	authHandler       *AuthHandler
	adminHandler      *AdminHandler
	flowHandler       *FlowHandler
	collectionHandler *CollectionHandler
	wsHandler         *WebSocketHandler
	authMiddleware    *middleware.AuthMiddleware
	log               *zap.Logger
}

// RouterOptions carries the router dependencies.
type RouterOptions struct {
	DB       *gorm.DB
	Services *service.Services
	Repos    *repository.Manager
	Fleet    *flow.Fleet
	Hub      *ws.Hub
	Log      *zap.Logger
}

// NewRouter creates the gin engine and registers all routes.
func NewRouter(opts RouterOptions) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(middleware.RequestID())

	router := &Router{
		engine:            engine,
		db:                opts.DB,
		services:          opts.Services,
		authHandler:       NewAuthHandler(opts.Services.Auth, opts.Services.User),
		adminHandler:      NewAdminHandler(opts.Services.User, opts.Repos),
		flowHandler:       NewFlowHandler(opts.Fleet),
		collectionHandler: NewCollectionHandler(opts.Services.Collection),
		wsHandler:         NewWebSocketHandler(opts.Hub, opts.Log),
		authMiddleware:    middleware.NewAuthMiddleware(opts.Services.Auth),
		log:               opts.Log,
	}

	router.setupRoutes()

	return router
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)

			authRequired := auth.Group("")
			authRequired.Use(r.authMiddleware.RequireAuth())
			{
				authRequired.GET("/profile", r.authHandler.GetProfile)
				authRequired.PUT("/password", r.authHandler.UpdatePassword)
			}
		}

		// deposit flow, teller only
		flowGroup := v1.Group("/flow")
		flowGroup.Use(r.authMiddleware.RequireRole(models.RoleTeller, models.RoleAdmin))
		{
			flowGroup.GET("/state", r.flowHandler.State)
			flowGroup.POST("/select-currency", r.flowHandler.SelectCurrency)
			flowGroup.POST("/count", r.flowHandler.Count)
			flowGroup.POST("/deposit", r.flowHandler.Deposit)
			flowGroup.POST("/finish", r.flowHandler.Finish)
			flowGroup.POST("/cancel", r.flowHandler.Cancel)
			flowGroup.POST("/recover", r.flowHandler.Recover)
		}

		collection := v1.Group("/collection")
		collection.Use(r.authMiddleware.RequireAuth())
		{
			collection.POST("/generate", r.collectionHandler.Generate)
			collection.GET("/pending", r.collectionHandler.Pending)

			resolver := collection.Group("")
			resolver.Use(r.authMiddleware.RequireRole(models.RoleAdmin))
			{
				resolver.POST("/:id/authorize", r.collectionHandler.Authorize)
				resolver.POST("/:id/reject", r.collectionHandler.Reject)
			}

			collector := collection.Group("")
			collector.Use(r.authMiddleware.RequireRole(models.RoleCollector, models.RoleAdmin))
			{
				collector.POST("/collect", r.collectionHandler.Collect)
			}
		}

		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/users", r.adminHandler.CreateUser)
			admin.GET("/users", r.adminHandler.ListUsers)
			admin.PUT("/users/:id/status", r.adminHandler.UpdateUserStatus)
			admin.PUT("/users/:id/device", r.adminHandler.AssignDevice)

			admin.POST("/bank-accounts", r.adminHandler.LinkBankAccount)
			admin.GET("/bank-accounts/:username", r.adminHandler.GetBankAccount)

			admin.GET("/devices", r.adminHandler.ListDevices)
			admin.GET("/concepts", r.adminHandler.ListConcepts)

			admin.GET("/transactions", r.adminHandler.ListTransactions)
			admin.GET("/transactions/report", r.adminHandler.TransactionReport)
			admin.GET("/transactions/:id/bank-audit", r.adminHandler.GetBankAudit)

			admin.GET("/ws/online", r.wsHandler.OnlineCount)
		}
	}

	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.RequireAuth())
	{
		wsGroup.GET("/flow", r.wsHandler.FlowWebSocket)
	}

	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "no such endpoint",
		})
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "database handle unavailable",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "database ping failed",
		})
		return
	}

	c.JSON(200, gin.H{
		"status": "healthy",
	})
}

// Run starts the HTTP server.
func (r *Router) Run(addr string) error {
	r.log.Info("starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine exposes the gin engine for tests.
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
