package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xianjianshenqu/health-report-analyzer/internal/extract"
	"github.com/xianjianshenqu/health-report-analyzer/internal/provider"
	"github.com/xianjianshenqu/health-report-analyzer/internal/provider/glm"
	"github.com/xianjianshenqu/health-report-analyzer/internal/reports"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/auth"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/config"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/metrics"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/server/middleware"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/server/respond"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/storage/db"
	"github.com/xianjianshenqu/health-report-analyzer/internal/shared/storage/object"
	localstore "github.com/xianjianshenqu/health-report-analyzer/internal/shared/storage/object/local"
	miniostore "github.com/xianjianshenqu/health-report-analyzer/internal/shared/storage/object/minio"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	// Dependencies
	store, err := newObjectStore(cfg)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.DefaultServerOptions())
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			if err := db.RunMigrations(context.Background(), dbConn); err != nil {
				log.Printf("failed to run migrations, falling back to memory: %v", err)
				dbConn = nil
			}
		}
		sqlDB = dbConn
	}

	var repo reports.Repo
	if sqlDB != nil {
		repo = &reports.PGRepo{DB: sqlDB}
	} else {
		repo = reports.NewMemoryRepo()
	}

	var client provider.Client
	if cfg.ProviderAPIKey != "" {
		client, err = glm.NewClient(glm.Config{
			BaseURL: cfg.ProviderBaseURL,
			APIKey:  cfg.ProviderAPIKey,
			Model:   cfg.ProviderModel,
		})
		if err != nil {
			return nil, err
		}
	} else {
		log.Printf("GLM_API_KEY is not set, analysis will fail until configured")
	}

	svc := &reports.Service{
		Repo:           repo,
		Store:          store,
		Extractor:      extract.New(cfg.TesseractCmd, cfg.TesseractLang),
		Provider:       client,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AcceptedTypes:  cfg.AcceptedMimeTypes,
		CallTimeout:    cfg.ProviderTimeout,
		RetryAttempts:  cfg.ProviderAttempts,
		RetryBaseDelay: cfg.ProviderRetryBase,
		RetryMaxDelay:  cfg.ProviderRetryMax,
	}
	handler := reports.NewHandler(svc)

	r.GET("/api/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/analysis")
	api.Use(
		middleware.Auth(verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"upload": {Rate: 0.5, Burst: 3},
				"read":   {Rate: 5, Burst: 10},
			},
			DefaultGroup: "read",
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost {
					return "upload"
				}
				return "read"
			},
		}),
	)
	handler.RegisterRoutes(api)

	return r, nil
}

func newObjectStore(cfg config.Config) (object.ObjectStore, error) {
	if cfg.ObjectStoreType == "minio" {
		return miniostore.New(context.Background(), miniostore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return localstore.New(cfg.LocalStoreDir), nil
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
