package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jobhound/backend/config"
	"github.com/jobhound/backend/internal/api/handlers"
	"github.com/jobhound/backend/internal/api/middleware"
	"github.com/jobhound/backend/internal/api/routes"
	"github.com/jobhound/backend/internal/cache"
	"github.com/jobhound/backend/internal/events"
	"github.com/jobhound/backend/internal/logger"
	"github.com/jobhound/backend/internal/models"
	"github.com/jobhound/backend/internal/payments"
	"github.com/jobhound/backend/internal/providers/llm"
	mongorepo "github.com/jobhound/backend/internal/repositories/mongo"
	pgrepo "github.com/jobhound/backend/internal/repositories/postgres"
	"github.com/jobhound/backend/internal/services"
	"github.com/jobhound/backend/internal/storage"
	"github.com/jobhound/backend/internal/thumbnail"
	"github.com/jobhound/backend/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	cfg := config.LoadApp()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	if err := config.InitPostgres(cfg.PostgresURI); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")
	if cfg.AutoMigrate {
		if err := config.MigrateUp(cfg.PostgresURI, cfg.MigrationsPath); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		log.Info("migrations applied")
	}

	// Redis
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	defer config.RedisClient.Close()
	log.Info("Redis connected")

	// MongoDB (AI audit log, optional)
	var aiCalls mongorepo.AICallRepository
	if ok, err := config.InitMongo(); err != nil {
		log.WithError(err).Warn("MongoDB unavailable; AI audit log disabled")
	} else if ok {
		if err := config.EnsureMongoIndexes(); err != nil {
			log.WithError(err).Warn("MongoDB index setup failed")
		}
		aiCalls = mongorepo.NewAICallRepo(config.MongoDatabase())
		defer config.MongoClient.Disconnect(context.Background())
		log.Info("MongoDB connected")
	}

	db := config.PostgresDB
	users := pgrepo.NewUserRepo(db)
	resumes := pgrepo.NewResumeRepo(db)
	jobs := pgrepo.NewJobRepo(db)
	scans := pgrepo.NewScanRepo(db)
	credits := pgrepo.NewCreditRepo(db)
	tasks := pgrepo.NewTaskRepo(db)

	var store storage.Store
	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer gcs.Close()
		store = gcs
	} else {
		log.Warn("GCS_BUCKET not set; resume uploads and enrichment are disabled")
	}

	ai := buildProvider(ctx, cfg, aiCalls, log)
	if ai != nil {
		defer ai.Close()
	}

	var gateway payments.Gateway
	if cfg.StripeConfigured() {
		gateway = payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripePriceID, cfg.StripeWebhookSecret, cfg.SiteURL)
	}

	bus := events.NewRedisBus(config.RedisClient)
	queue := workers.NewQueue(config.RedisClient, tasks, log)

	scanSvc := services.NewScanService(services.ScanDeps{
		Users:       users,
		Jobs:        jobs,
		Resumes:     resumes,
		Scans:       scans,
		Credits:     credits,
		Files:       store,
		AI:          ai,
		Queue:       queue,
		Events:      bus,
		Cache:       cache.NewRedisCache(config.RedisClient),
		Logger:      log,
		Temperature: cfg.AITemperature,
		AITimeout:   cfg.AITimeout,
	})
	resumeSvc := services.NewResumeService(services.ResumeDeps{
		Users:        users,
		Resumes:      resumes,
		Store:        store,
		Renderer:     thumbnail.NewFitzRenderer(),
		AI:           ai,
		Queue:        queue,
		Logger:       log,
		SignedURLTTL: cfg.SignedURLTTL,
		AITimeout:    cfg.AITimeout,
	})
	jobSvc := services.NewJobService(users, jobs, ai)
	creditSvc := services.NewCreditService(users, credits, gateway, cfg.CreditsPerPurchase, log)
	userSvc := services.NewUserService(users, resumes)

	pool := &workers.TaskWorkerPool{
		Redis: config.RedisClient,
		Tasks: tasks,
		Queue: queue,
		Handlers: map[models.TaskKind]workers.Handler{
			models.TaskScanAnalysis:     scanSvc.RunTask,
			models.TaskResumeEnrichment: resumeSvc.Enrich,
		},
		Sweeps: map[string]workers.Sweep{
			"abandoned_scans": scanSvc.ExpireAbandoned,
		},
		NumWorkers: cfg.WorkerCount,
		Logger:     log,
		Lease:      cfg.TaskLease,
	}
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	if err := pool.Start(workerCtx); err != nil {
		log.WithError(err).Fatal("worker pool start failed")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, "/ping"))

	routes.RegisterRoutes(r, routes.Deps{
		JWT: middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     middleware.NewUserRateLimiter(cfg.RateLimitRPS, 3),
		Scan:        handlers.NewScanHandler(scanSvc, cfg.ScanMode),
		Resume:      handlers.NewResumeHandler(resumeSvc),
		Job:         handlers.NewJobHandler(jobSvc),
		Credit:      handlers.NewCreditHandler(creditSvc),
		Profile:     handlers.NewProfileHandler(userSvc),
		AICalls:     handlers.NewAICallHandler(aiCalls),
		WS:          handlers.NewWSHandler(scanSvc, bus, cfg.CORSOrigins, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// streaming scans finish on a detached context; give them the AI budget
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AITimeout+15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}

	stopWorkers()
	pool.Wait()
	log.Info("bye")
}

// buildProvider prefers Vertex AI when a GCP project is configured and falls
// back to the Gemini API key. It returns nil when neither is set; handlers
// then answer with a configuration error.
func buildProvider(ctx context.Context, cfg config.App, audit mongorepo.AICallRepository, log *logrus.Logger) llm.Provider {
	var (
		p   llm.Provider
		err error
	)
	switch {
	case cfg.GCPProjectID != "":
		p, err = llm.NewVertexGemini(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.AIModel)
	case cfg.GeminiAPIKey != "":
		p, err = llm.NewGoogleAI(ctx, cfg.GeminiAPIKey, cfg.AIModel)
	default:
		log.Warn("no AI provider configured; scans and extraction are disabled")
		return nil
	}
	if err != nil {
		log.WithError(err).Fatal("AI provider init error")
	}
	log.WithField("model", p.Model()).Info("AI provider ready")

	var sink llm.AuditSink
	if audit != nil {
		sink = audit
	}
	return llm.NewAudited(p, sink, log, 30*24*time.Hour)
}
