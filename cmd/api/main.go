package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/eventlog"
	"storefront/internal/infra/notify"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/payments"
	"storefront/internal/pricing"
	"storefront/internal/server"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now().UTC()
}

func main() {
	cfg, err := config.LoadWithDotenv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("server stopped", zap.Error(err))
		stop()
		_ = zl.Sync()
		os.Exit(1)
	}
	zl.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	//DB接続
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gormDB, err := db.Connect(connectCtx, cfg.DSN())
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	policy := pricing.FromSettings(cfg.TaxRatePercent, cfg.ShippingFlatCents, cfg.FreeShippingOverCents)

	provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Logger:        zl.Named("stripe"),
	})
	if err != nil {
		return err
	}

	//通知（ブローカーが無ければログだけ）
	var notifier usecase.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaOrderTopic, zl.Named("notify"), cfg.KafkaBrokers...)
		defer func() { _ = kn.Close() }()
		notifier = kn
	} else {
		notifier = notify.NewLogNotifier(zl.Named("notify"))
	}

	//Webhookの重複排除（Redisが無ければDBの状態だけで判定）
	var ledger usecase.EventLedger = eventlog.NopLedger{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		ledger = eventlog.NewRedisLedger(rdb)
	}

	//Usecase生成
	cartUC := usecase.NewCartUsecase(txm)
	resolver := usecase.NewCartResolver(productRepo, cartRepo, cartItemRepo, cartUC)
	assembler := usecase.NewOrderAssembler(txm, policy, cfg.Currency, idGen, notifier, zl.Named("order"))
	checkoutUC := usecase.NewCheckoutUsecase(txm, orderRepo, orderItemRepo, resolver, assembler, cartUC, provider, cfg.FEURL, zl.Named("checkout"))
	webhookUC := usecase.NewPaymentWebhookUsecase(txm, provider, ledger, notifier, clock, zl.Named("webhook"))
	orderUC := usecase.NewOrderUsecase(orderRepo, orderItemRepo)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm)

	//bcrypt（会員登録：Hash / ログイン：Verify）
	registerUC := auth.NewRegisterUserUsecase(userRepo, auth.NewBcryptPasswordHasher(12))
	loginUC := auth.NewLoginUsecase(userRepo, auth.NewBcryptPasswordVerifier(), auth.NewHS256Issuer(cfg.JWTSecret, auth.AccessTokenTTL), resolver, clock)

	//Handler生成
	e := server.New(cfg, zl, userRepo, server.Handlers{
		Auth:        handler.NewAuthHandler(registerUC, loginUC),
		Cart:        handler.NewCartHandler(cartUC, resolver),
		Checkout:    handler.NewCheckoutHandler(checkoutUC),
		Orders:      handler.NewOrderHandler(orderUC),
		Webhook:     handler.NewWebhookHandler(webhookUC, zl.Named("webhook")),
		AdminOrders: handler.NewAdminOrderHandler(adminOrderUC),
	})

	return server.Start(ctx, addr(cfg.Port), e, zl)
}

func addr(port string) string {
	if port != "" && port[0] == ':' {
		return port
	}
	return ":" + port
}
