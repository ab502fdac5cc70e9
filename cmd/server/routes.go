package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	aicontroller "codearena/internal/ai/controller"
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/ratelimit"
	discusscontroller "codearena/internal/discuss/controller"
	problemcontroller "codearena/internal/problem/controller"
	sheetcontroller "codearena/internal/sheet/controller"
	submitcontroller "codearena/internal/submit/controller"
	usercontroller "codearena/internal/user/controller"
	videocontroller "codearena/internal/video/controller"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
)

const readinessTimeout = 2 * time.Second

// routeSet is everything the router needs from the composition root.
type routeSet struct {
	auth        middleware.Authenticator
	chatLimiter ratelimit.Limiter

	user    *usercontroller.UserController
	problem *problemcontroller.ProblemController
	submit  *submitcontroller.SubmitController
	video   *videocontroller.VideoController
	discuss *discusscontroller.PostController
	sheet   *sheetcontroller.SheetController
	chat    *aicontroller.ChatController
}

type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

func buildRouter(cfg *AppConfig, routes routeSet, readies []readinessCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	maxAge := ""
	if cfg.CORS.MaxAge > 0 {
		maxAge = fmt.Sprintf("%d", int(cfg.CORS.MaxAge.Seconds()))
	}
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.CORS.Enabled,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           maxAge,
	}))
	router.Use(middleware.RequestLogger())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "everything fine"})
	})
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/readyz", readinessHandler(readies))

	authed := middleware.AuthMiddleware(routes.auth)
	adminOnly := middleware.AuthMiddleware(routes.auth, middleware.RoleAdmin)
	optionalAuth := middleware.OptionalAuthMiddleware(routes.auth)

	user := router.Group("/user")
	user.POST("/register", routes.user.Register)
	user.POST("/login", routes.user.Login)
	user.POST("/logout", authed, routes.user.Logout)
	user.POST("/admin/register", adminOnly, routes.user.AdminRegister)
	user.DELETE("/deleteProfile", authed, routes.user.DeleteProfile)
	user.GET("/check", authed, routes.user.Check)
	user.GET("/getProfile", authed, routes.user.GetProfile)
	user.GET("/getProfileById/:id", optionalAuth, routes.user.GetProfileByID)
	user.PUT("/update/:id", authed, routes.user.Update)
	user.POST("/avatar/upload-url", authed, routes.user.AvatarUploadURL)

	problem := router.Group("/problem")
	problem.POST("/create", adminOnly, routes.problem.Create)
	problem.PUT("/update/:id", adminOnly, routes.problem.Update)
	problem.DELETE("/delete/:id", adminOnly, routes.problem.Delete)
	problem.GET("/problemById/:id", authed, routes.problem.GetByID)
	problem.GET("/getAllProblem", authed, routes.problem.List)
	problem.GET("/problemSolvedByUser", authed, routes.problem.SolvedByUser)
	problem.GET("/submittedProblem/:pid", authed, routes.submit.ListForProblem)

	submission := router.Group("/submission", authed)
	submission.POST("/run/:id", routes.submit.Run)
	submission.POST("/submit/:id", routes.submit.Submit)
	submission.GET("/:id", routes.submit.Get)

	router.POST("/ai/chat",
		authed,
		middleware.RateLimitMiddleware(routes.chatLimiter, middleware.UserKey("ai")),
		routes.chat.Chat,
	)

	video := router.Group("/video", adminOnly)
	video.GET("/create/:problemId", routes.video.CreateUpload)
	video.POST("/save", routes.video.Save)
	video.DELETE("/delete/:problemId", routes.video.Delete)

	discuss := router.Group("/discuss")
	discuss.GET("/", routes.discuss.List)
	discuss.GET("/:id", routes.discuss.Get)
	discuss.POST("/create", authed, routes.discuss.Create)
	discuss.POST("/:id/comments", authed, routes.discuss.AddComment)

	resource := router.Group("/resource", authed)
	resource.POST("/createSheet", adminOnly, routes.sheet.Create)
	resource.GET("/", routes.sheet.List)
	resource.GET("/:id", routes.sheet.Get)

	return router
}

func readinessHandler(readies []readinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		failed := gin.H{}
		for _, check := range readies {
			if err := check.ping(ctx); err != nil {
				failed[check.name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func buildHTTPServer(cfg *AppConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        gzhttp.GzipHandler(handler),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
}
