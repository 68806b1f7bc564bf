package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/SpeakCoachBot/internal/admin"
	"github.com/digkill/SpeakCoachBot/internal/config"
	"github.com/digkill/SpeakCoachBot/internal/critique"
	"github.com/digkill/SpeakCoachBot/internal/database"
	"github.com/digkill/SpeakCoachBot/internal/pricing"
	"github.com/digkill/SpeakCoachBot/internal/prompts"
	"github.com/digkill/SpeakCoachBot/internal/repository"
	"github.com/digkill/SpeakCoachBot/internal/robokassa"
	"github.com/digkill/SpeakCoachBot/internal/service"
	"github.com/digkill/SpeakCoachBot/internal/storage"
	"github.com/digkill/SpeakCoachBot/internal/tasks"
	"github.com/digkill/SpeakCoachBot/internal/telegram"
	"github.com/digkill/SpeakCoachBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	priceStore, err := pricing.NewStore(cfg.PricesFile)
	if err != nil {
		log.Fatalf("price store: %v", err)
	}
	promptStore, err := prompts.NewStore(cfg.PromptFile)
	if err != nil {
		log.Fatalf("prompt store: %v", err)
	}

	adminService := service.NewAdminService(adminRepo, cfg.SuperAdminID)
	if err := adminService.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap super admin: %v", err)
	}

	entitlementService := service.NewEntitlementService(userRepo, adminRepo, cfg.TrialAllowance, logr)

	gateway := robokassa.NewClient(robokassa.Config{
		MerchantLogin: cfg.RobokassaMerchantLogin,
		Password1:     cfg.RobokassaPassword1,
		Password2:     cfg.RobokassaPassword2,
		TestMode:      cfg.RobokassaTestMode,
		PaymentURL:    cfg.RobokassaPaymentURL,
		StatusURL:     cfg.RobokassaStatusURL,
		Timeout:       cfg.RequestTimeout,
	}, logr)
	paymentService := service.NewPaymentService(paymentRepo, gateway, entitlementService, priceStore, cfg.SweepMaxAge, logr)
	go paymentService.RunSweeper(ctx, cfg.SweepInterval)

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	engine := critique.NewClient(critique.Config{
		BaseURL: cfg.CritiqueBaseURL,
		Model:   cfg.CritiqueModel,
	}, logr)
	reviewService := service.NewReviewService(engine, uploader, cfg.CritiqueAPIKeys, cfg.CritiqueTranscribeMode, logr)

	taskProvider := tasks.NewProvider(cfg.TasksWebhookURL, cfg.RequestTimeout, logr)

	bot := telegram.NewBot(cfg, botAPI, logr, entitlementService, adminService, paymentService, reviewService, taskProvider, priceStore, promptStore)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, entitlementService, priceStore, promptStore, botAPI)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
