package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/logger"
	"github.com/wfunc/chain-game/internal/middleware"
	"github.com/wfunc/chain-game/internal/service"
	"github.com/wfunc/chain-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	authHandler    *AuthHandler
	gameHandler    *GameHandler
	wsHandler      *WSHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(
	db *gorm.DB,
	authService service.AuthService,
	gameService service.GameService,
	hub *websocket.Hub,
	cfg *config.Config,
	log *zap.Logger,
) *Router {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	router := &Router{
		engine:         engine,
		db:             db,
		authHandler:    NewAuthHandler(authService),
		gameHandler:    NewGameHandler(gameService),
		wsHandler:      NewWSHandler(hub, &cfg.WebSocket, log),
		authMiddleware: middleware.NewAuthMiddleware(authService),
		log:            log,
	}

	router.setupRoutes(cfg)
	return router
}

// requestLogger 请求日志中间件
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// setupRoutes 设置路由
func (r *Router) setupRoutes(cfg *config.Config) {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)
		}

		// 游戏相关路由（需要认证）
		games := v1.Group("/games")
		games.Use(r.authMiddleware.RequireAuth())
		{
			games.GET("", r.gameHandler.ListActive)
			games.POST("", r.gameHandler.CreateGame)
			games.GET("/mine", r.gameHandler.ListMine)
			games.POST("/join", r.gameHandler.JoinGame)
			games.POST("/score", r.gameHandler.SubmitScore)
			games.GET("/:id", r.gameHandler.GetGame)
			games.GET("/:id/randomness", r.gameHandler.AwaitRandomness)
			games.POST("/:id/commit", r.gameHandler.CommitScore)
			games.POST("/:id/reveal", r.gameHandler.RevealScore)
			games.POST("/:id/cancel", r.gameHandler.CancelGame)
		}

		// 庄家资金池（需要认证）
		house := v1.Group("/house")
		house.Use(r.authMiddleware.RequireAuth())
		{
			house.GET("/balance", r.gameHandler.HouseBalance)
		}
	}

	// WebSocket路由：握手通过query带token
	r.engine.GET(cfg.WebSocket.Path, r.authMiddleware.RequireAuth(), r.wsHandler.Serve)

	// API文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
