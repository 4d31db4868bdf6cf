package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/recdfyi/recd-server/internal/config"
	"github.com/recdfyi/recd-server/internal/db"
	"github.com/recdfyi/recd-server/internal/email"
	"github.com/recdfyi/recd-server/internal/handlers"
	"github.com/recdfyi/recd-server/internal/middleware"
	"github.com/recdfyi/recd-server/internal/services"
	"github.com/recdfyi/recd-server/internal/storage"
	"github.com/recdfyi/recd-server/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("connect mongodb", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to mongodb", "db", cfg.MongoDB)

	stores := store.NewMongo(database)
	if err := stores.EnsureIndexes(ctx); err != nil {
		logger.Error("ensure indexes", "error", err)
		os.Exit(1)
	}

	blobs, err := storage.NewMinio(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		logger.Error("connect minio", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to minio", "bucket", cfg.MinioBucket)

	authSvc := services.NewAuthService(stores, cfg.JWTSecret)
	userSvc := services.NewUserService(stores)
	cdSvc := services.NewCDService(stores, stores, stores, blobs, logger)
	fileSvc := services.NewFileService(stores, stores, stores, blobs, logger)
	shareSvc := services.NewShareService(stores, stores, stores, logger)
	marketSvc := services.NewMarketplaceService(stores, stores, logger)
	emailSvc := services.NewEmailService(stores, stores, shareSvc, email.LogRelay{Logger: logger}, cfg.PublicBaseURL, logger)

	// Finish any cascade delete a previous run left mid-sweep.
	if err := cdSvc.ResumeSweeps(ctx); err != nil {
		logger.Error("resume delete sweeps", "error", err)
	}

	h := handlers.New(authSvc, userSvc, cdSvc, fileSvc, shareSvc, marketSvc, emailSvc, logger)

	app := fiber.New(fiber.Config{BodyLimit: 25 * 1024 * 1024})
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	app.Get("/healthz", h.Healthz)

	auth := app.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	me := app.Group("/me", middleware.Auth(cfg.JWTSecret))
	me.Get("/", h.Me)
	me.Put("/username", h.SetUsername)

	// CD reads go through optional auth: the policy engine grants
	// access to owners, token holders and public CDs alike.
	cds := app.Group("/cds")
	cds.Post("/", middleware.Auth(cfg.JWTSecret), h.CreateCD)
	cds.Get("/", middleware.Auth(cfg.JWTSecret), h.ListCDs)
	cds.Get("/:id", middleware.OptionalAuth(cfg.JWTSecret), h.GetCD)
	cds.Put("/:id", middleware.Auth(cfg.JWTSecret), h.UpdateCD)
	cds.Delete("/:id", middleware.Auth(cfg.JWTSecret), h.DeleteCD)
	cds.Post("/:id/publish", middleware.Auth(cfg.JWTSecret), h.PublishCD)
	cds.Post("/:id/unpublish", middleware.Auth(cfg.JWTSecret), h.UnpublishCD)

	cds.Post("/:id/files", middleware.Auth(cfg.JWTSecret), h.UploadFile)
	cds.Get("/:id/files", middleware.OptionalAuth(cfg.JWTSecret), h.ListFiles)
	cds.Get("/:id/files/:fileId", middleware.OptionalAuth(cfg.JWTSecret), h.GetFile)
	cds.Delete("/:id/files/:fileId", middleware.Auth(cfg.JWTSecret), h.DeleteFile)

	cds.Post("/:id/share", middleware.Auth(cfg.JWTSecret), h.IssueShare)
	cds.Post("/:id/email", middleware.Auth(cfg.JWTSecret), h.SendShareEmail)

	app.Get("/share/:token", middleware.OptionalAuth(cfg.JWTSecret), h.ResolveShare)
	app.Delete("/share/:token", middleware.Auth(cfg.JWTSecret), h.RevokeShare)

	app.Get("/market", h.ListMarketplace)
	app.Get("/market/:id", middleware.OptionalAuth(cfg.JWTSecret), h.ViewMarketplaceCD)

	app.Get("/emails", middleware.Auth(cfg.JWTSecret), h.ListEmailLogs)

	logger.Info("listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
