package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cppla/teamfeed/config"
	"github.com/cppla/teamfeed/controllers"
	"github.com/cppla/teamfeed/middleware"
	"github.com/cppla/teamfeed/storage"
	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, db *gorm.DB, blobs storage.Storage) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg, cfg.GinPath)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, true))
	} else {
		utils.Sugar.Warnf("gin access log disabled: %v", err)
		r.Use(gin.Recovery())
	}
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	loc := cfg.Location()
	accounts := store.NewAccountStore(db, blobs, cfg.IsAdminEmail, cfg.MaxProfileImageMB)
	feed := store.NewFeedStore(db, blobs, store.NewUploadPolicy(cfg))
	teams := store.NewTeamStore(db, cfg.FrontendURL)
	todos := store.NewTodoStore(db, loc)
	stats := store.NewStatsStore(db, loc)

	authController := controllers.NewAuthController(accounts)
	postController := controllers.NewPostController(feed)
	teamController := controllers.NewTeamController(teams)
	todoController := controllers.NewTodoController(todos)
	statsController := controllers.NewStatsController(stats)

	authRequired := middleware.AuthRequired()
	rateLimit := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", rateLimit, authController.Register)
	authGroup.POST("/login", rateLimit, authController.Login)
	authGroup.POST("/token/refresh", rateLimit, authController.Refresh)
	authGroup.POST("/logout", authRequired, authController.Logout)
	authGroup.GET("/me", authRequired, authController.Me)
	authGroup.PATCH("/me", authRequired, authController.UpdateMe)

	api.GET("/accounts/:id/avatar", authController.Image(store.ImageAvatar))
	api.GET("/accounts/:id/cover", authController.Image(store.ImageCover))

	adminGroup := api.Group("/admin")
	adminGroup.Use(authRequired, middleware.AdminRequired(accounts))
	adminGroup.GET("/users", authController.ListUsers)
	adminGroup.GET("/users/:id", authController.GetUser)
	adminGroup.POST("/users/:id/password", authController.ResetPassword)

	// public reads
	api.GET("/posts", middleware.AuthOptional(), postController.ListPosts)
	api.GET("/posts/:id/comments", postController.ListComments)

	protected := api.Group("")
	protected.Use(authRequired, rateLimit)

	protected.POST("/posts", postController.CreatePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/like-toggle", postController.ToggleLike)
	protected.POST("/posts/:id/checklist/toggle", postController.ToggleChecklistItem)
	protected.POST("/posts/:id/comments", postController.CreateComment)
	protected.GET("/posts/attachments/:id/download", postController.DownloadAttachment)

	protected.GET("/stats/calendar", statsController.Calendar)

	protected.GET("/teams", teamController.ListTeams)
	protected.POST("/teams", teamController.CreateTeam)
	protected.POST("/teams/join", teamController.JoinTeam)
	protected.GET("/teams/:id/posts", teamController.ListTeamPosts)
	protected.POST("/teams/:id/posts", teamController.CreateTeamPost)

	protected.GET("/todos", todoController.ListTodos)
	protected.POST("/todos", todoController.CreateTodo)
	protected.PATCH("/todos/:id", todoController.UpdateTodo)
	protected.DELETE("/todos/:id", todoController.DeleteTodo)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
