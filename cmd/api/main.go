package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/database"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/handlers"
	"github.com/school-system/portal/internal/logging"
	"github.com/school-system/portal/internal/middleware"
	"github.com/school-system/portal/internal/models"
	"github.com/school-system/portal/internal/repository"
	"github.com/school-system/portal/internal/repository/gormrepo"
	"github.com/school-system/portal/internal/services"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title School Portal Results API
// @version 1.0
// @description Mark entry, grade boundaries and ranked results matrices for a secondary school portal
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	log := logging.Must(cfg.Server.Env)
	defer log.Sync()

	if len(os.Args) > 1 {
		handleCommand(cfg, log, os.Args[1], os.Args[2:])
		return
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := gormrepo.New(db)
	matrixCache := newCache(cfg, log)

	if cfg.Server.Env == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS.Origins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "school-portal-api"})
	})

	if cfg.Monitoring.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Services
	policy := grading.SevenSubjectPolicy{ClassPrefixes: cfg.Grading.SevenSubjectClasses}
	authService := services.NewAuthService(repo, cfg)
	auditService := services.NewAuditService(repo)
	resultsService := services.NewResultsService(repo, matrixCache, cfg.Cache.MatrixTTL, policy, log)
	markService := services.NewMarkService(repo, matrixCache, auditService, log)
	boundaryService := services.NewBoundaryService(repo, matrixCache, auditService, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(authService)
	classHandler := handlers.NewClassHandler(repo, repo)
	resultHandler := handlers.NewResultHandler(resultsService, markService)
	boundaryHandler := handlers.NewBoundaryHandler(boundaryService)
	auditHandler := handlers.NewAuditHandler(auditService)

	// Routes
	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			protected.GET("/me", authHandler.Me)

			superAdmin := protected.Group("")
			superAdmin.Use(middleware.RequireSuperAdmin())
			{
				superAdmin.POST("/users", userHandler.Create)
				superAdmin.GET("/audit/recent", auditHandler.GetRecentActivity)
			}

			viewer := protected.Group("")
			viewer.Use(middleware.RequirePermission(auth.PermViewResults))
			{
				viewer.GET("/classes/:name/students", classHandler.Students)
				viewer.GET("/classes/:name/subjects", classHandler.Subjects)
				viewer.GET("/exams", resultHandler.ListExams)
				viewer.GET("/exams/:id/results", resultHandler.Matrix)
				viewer.GET("/exams/:id/results/export", resultHandler.Export)
				viewer.GET("/grade-boundaries", boundaryHandler.List)
			}

			// Mark and boundary writes check permissions in the services
			protected.POST("/marks", resultHandler.WriteMark)
			protected.DELETE("/marks/:id", resultHandler.DeleteMark)
			protected.POST("/grade-boundaries", boundaryHandler.Create)
			protected.POST("/grade-boundaries/defaults", boundaryHandler.SeedDefaults)
			protected.PUT("/grade-boundaries/:id", boundaryHandler.Update)
			protected.DELETE("/grade-boundaries/:id", boundaryHandler.Delete)
		}
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("Server starting", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
	if err := r.Run(addr); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// newCache returns a Redis-backed matrix cache when Redis is enabled and an
// in-process one otherwise.
func newCache(cfg *config.Config, log *zap.Logger) cache.Cache {
	if !cfg.Redis.Enabled {
		log.Info("Using in-memory matrix cache")
		return cache.NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Cache errors are served as misses, so the API can still start
		log.Warn("Redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		log.Info("Using Redis matrix cache", zap.String("addr", cfg.Redis.Addr))
	}
	return cache.NewRedis(client)
}

func handleCommand(cfg *config.Config, log *zap.Logger, cmd string, args []string) {
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := gormrepo.New(db)

	switch cmd {
	case "migrate":
		if err := database.Migrate(db, log); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Migration completed successfully")

	case "seed-admin":
		seedAdmin(repo, cfg, log)

	case "seed-boundaries":
		if len(args) == 0 {
			log.Fatal("Usage: seed-boundaries <class name>")
		}
		n, err := seedBoundaries(context.Background(), repo, newCache(cfg, log), log, args[0])
		if err != nil {
			log.Fatal("Failed to seed grade boundaries", zap.String("class", args[0]), zap.Error(err))
		}
		log.Info("Seeded grade boundaries", zap.String("class", args[0]), zap.Int("rows", n))

	default:
		log.Error("Unknown command", zap.String("command", cmd))
	}
}

// seedBoundaries writes the default mark scale for a class through the
// cache the API reads, so running servers drop their matrices.
func seedBoundaries(ctx context.Context, repo repository.Repository, c cache.Cache, log *zap.Logger, className string) (int, error) {
	boundaries := services.NewBoundaryService(repo, c, services.NewAuditService(repo), log)
	system := auth.Context{UserID: uuid.Nil, Role: auth.RoleSuperAdmin}
	return boundaries.SeedDefaults(ctx, system, className)
}

func seedAdmin(repo *gormrepo.Repository, cfg *config.Config, log *zap.Logger) {
	ctx := context.Background()
	authService := services.NewAuthService(repo, cfg)

	count, err := repo.CountUsersByRole(ctx, string(auth.RoleSuperAdmin))
	if err != nil {
		log.Fatal("Failed to count users", zap.Error(err))
	}
	if count > 0 {
		log.Info("Super admin already exists")
		return
	}

	email := envOr("SEED_ADMIN_EMAIL", "admin@school.ac.ke")
	admin := &models.User{
		Email:    email,
		FullName: "Super Administrator",
		Role:     string(auth.RoleSuperAdmin),
		IsActive: true,
	}
	if err := authService.CreateUser(ctx, admin, envOr("SEED_ADMIN_PASSWORD", "Admin@123")); err != nil {
		log.Fatal("Failed to create super admin", zap.Error(err))
	}
	log.Info("Super admin created", zap.String("email", email))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
