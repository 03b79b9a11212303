package main

import (
	"net/http"
	"time"

	"github.com/Anylayerorg/landing-sub001/handler"
	"github.com/Anylayerorg/landing-sub001/middleware"
	"github.com/gin-gonic/gin"
)

func newRouter(a *app) *gin.Engine {
	authHandler := handler.NewAuthHandler(a.cfg)
	submissionHandler := handler.NewSubmissionHandler(a.submissions, a.controller)
	reviewHandler := handler.NewReviewHandler(a.controller)
	inboxHandler := handler.NewInboxHandler(a.inboxSvc)

	router := gin.New()

	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(middleware.CORS(a.cfg.Server.AllowedOrigins))
	router.Use(middleware.NoCache())
	router.Use(middleware.RateLimit(300, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"store":     a.cfg.Store.Driver,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")

	// Public routes, reachable from the landing site
	public := api.Group("", middleware.RateLimit(30, time.Minute))
	{
		public.POST("/auth/login", authHandler.Login)
		public.POST("/submissions", submissionHandler.Create)
		public.POST("/subscribe", inboxHandler.Subscribe)
		public.POST("/contact", inboxHandler.Contact)
	}

	protected := api.Group("", middleware.AuthMiddleware(&a.cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.GET("/submissions", submissionHandler.List)
		protected.GET("/submissions/:id", submissionHandler.Get)
		protected.GET("/reviews/unresolved", reviewHandler.Unresolved)
	}

	decide := protected.Group("", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleReviewer))
	{
		decide.POST("/submissions/:id/approve", reviewHandler.Approve)
		decide.POST("/submissions/:id/reject", reviewHandler.Reject)
		decide.POST("/submissions/:id/resolve", reviewHandler.Resolve)
		decide.POST("/submissions/:id/acknowledge", reviewHandler.Acknowledge)
		decide.POST("/submissions/approve-batch", reviewHandler.ApproveBatch)
	}

	return router
}
