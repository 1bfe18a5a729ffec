package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jobhound/backend/internal/api/handlers"
	"github.com/jobhound/backend/internal/api/middleware"
)

type Deps struct {
	JWT         middleware.JWTConfig
	CORSOrigins []string
	Limiter     *middleware.UserRateLimiter

	Scan    *handlers.ScanHandler
	Resume  *handlers.ResumeHandler
	Job     *handlers.JobHandler
	Credit  *handlers.CreditHandler
	Profile *handlers.ProfileHandler
	AICalls *handlers.AICallHandler
	WS      *handlers.WSHandler
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"x-scan-id", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// signature-verified, no JWT
	r.POST("/api/stripe/webhook", d.Credit.Webhook)

	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	api := auth.Group("/api")
	limited := api.Group("")
	if d.Limiter != nil {
		limited.Use(middleware.RateLimit(d.Limiter))
	}

	api.GET("/me", d.Profile.Me)
	api.PUT("/me", d.Profile.Update)

	limited.POST("/create-resume", d.Resume.Create)
	limited.POST("/resumes/upload", d.Resume.Upload)
	api.GET("/resumes", d.Resume.List)
	api.GET("/resumes/:id", d.Resume.Get)
	api.POST("/resumes/:id/default", d.Resume.SetDefault)
	api.DELETE("/resumes/:id", d.Resume.Delete)

	api.POST("/jobs", d.Job.Create)
	api.GET("/jobs", d.Job.List)
	api.GET("/jobs/:id", d.Job.Get)
	api.PUT("/jobs/:id", d.Job.Update)
	limited.POST("/process-job-listing", d.Job.ProcessListing)

	api.GET("/credits", d.Credit.Balance)
	api.POST("/credits/checkout", d.Credit.Checkout)

	limited.POST("/create-scan", d.Scan.Create)
	api.GET("/scans", d.Scan.List)
	api.GET("/scans/:id", d.Scan.Get)

	auth.GET("/ws/scans/:id", d.WS.ScanStatus)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/credits/grant", d.Credit.AdminGrant)
	admin.GET("/ai-calls", d.AICalls.List)
}
