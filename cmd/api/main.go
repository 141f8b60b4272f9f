package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/auth"
	"greenfin/portal/portal-backend/internal/config"
	"greenfin/portal/portal-backend/internal/csr"
	"greenfin/portal/portal-backend/internal/database"
	"greenfin/portal/portal-backend/internal/greencredits"
	"greenfin/portal/portal-backend/internal/invoice"
	"greenfin/portal/portal-backend/internal/logging"
	"greenfin/portal/portal-backend/internal/notifications/websocket"
	"greenfin/portal/portal-backend/internal/verification"
	"greenfin/portal/portal-backend/pkg/llm"
	"greenfin/portal/portal-backend/pkg/storage"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Verifier
	var chat llm.ChatClient
	if cfg.VerifierEnabled() {
		chat = llm.NewClient(llm.Config{
			BaseURL:   cfg.Verifier.BaseURL,
			APIKey:    cfg.Verifier.APIKey,
			Model:     cfg.Verifier.Model,
			MaxTokens: cfg.Verifier.MaxTokens,
			Timeout:   cfg.Verifier.Timeout.Duration,
		})
	} else {
		logger.Warn("No verifier API key configured, using keyword fallback only")
	}
	verifier := verification.NewVerifier(chat, verification.Config{
		Timeout:          cfg.Verifier.Timeout.Duration,
		InvoiceTextLimit: cfg.Verifier.InvoiceTextLimit,
		MaxTokens:        cfg.Verifier.MaxTokens,
	}, logger)

	// Invoice extraction
	var (
		rasterizer invoice.Rasterizer
		recognizer invoice.Recognizer
	)
	if invoice.Available(orDefault(cfg.Extraction.TesseractBin, "tesseract")) {
		recognizer = invoice.NewTesseractRecognizer(cfg.Extraction.TesseractBin, cfg.Extraction.OCRLanguage)
		if invoice.Available(orDefault(cfg.Extraction.PdftoppmPath, "pdftoppm")) {
			rasterizer = invoice.NewPdftoppmRasterizer(cfg.Extraction.PdftoppmPath)
		}
	} else {
		logger.Warn("tesseract not found, OCR disabled")
	}
	extractor := invoice.NewExtractor(invoice.Config{
		PDFTimeout: cfg.Extraction.PDFTimeout.Duration,
		OCRTimeout: cfg.Extraction.OCRTimeout.Duration,
		OCRPages:   cfg.Extraction.OCRPages,
		OCRScale:   cfg.Extraction.OCRScale,
	}, rasterizer, recognizer, logger)

	// Invoice storage
	var files greencredits.FileStore = greencredits.ReferenceFileStore{}
	if cfg.Storage.InvoiceBucket != "" {
		s3Client, err := storage.NewS3Client(context.Background(), storage.S3Config{
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretKey,
		})
		if err != nil {
			logger.Warn("Failed to initialise S3 client, keeping file references only", zap.Error(err))
		} else {
			files = greencredits.NewS3FileStore(s3Client, cfg.Storage.InvoiceBucket, cfg.Storage.KeyPrefix)
		}
	}

	hub := websocket.NewHub(logger)
	defer hub.Close()

	creditsService := greencredits.NewService(
		greencredits.NewRepository(db.SQL), extractor, verifier, files, hub, logger)
	creditsHandler := greencredits.NewHandler(creditsService, cfg.Server.MaxUploadBytes, logger)

	csrService := csr.NewService(csr.NewRepository(db.Gorm), logger)
	csrHandler := csr.NewHandler(csrService, hub, logger)

	authHandler := auth.NewHandler(cfg.Security)

	// Setup Router
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"verifier":   verifier.Enabled(),
			"ocr":        recognizer != nil,
			"live_feeds": hub.ConnectionCount(),
		})
	})

	api := router.Group("/api/v1", auth.Middleware(cfg.Security, logger))
	{
		auth.RegisterRoutes(api, authHandler)
		creditsHandler.RegisterRoutes(api)
		csrHandler.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
