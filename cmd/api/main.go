package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"campusauth/internal/db"
	"campusauth/internal/modules/auth/domain"
	authhttp "campusauth/internal/modules/auth/http"
	"campusauth/internal/modules/auth/infra/rdb"
	"campusauth/internal/platform/config"
	"campusauth/internal/platform/events"
	phttp "campusauth/internal/platform/http"
	"campusauth/internal/platform/logger"
	"campusauth/internal/platform/notify"
	"campusauth/internal/platform/ratelimit"
	"campusauth/internal/platform/security"
	"campusauth/internal/platform/storage"
	"campusauth/internal/platform/vision"
	"campusauth/internal/policy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PGDSN, log); err != nil {
		return err
	}
	dbpool, err := db.Open(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	rdbClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	defer rdbClient.Close()

	var codes domain.CodeRepo
	switch cfg.CodeStore {
	case "redis":
		codes = rdb.NewCodeRepo(rdbClient, log, cfg.ResendCooldown)
	case "postgres":
		// nil selects the Postgres code repo
	default:
		return errors.New("CODE_STORE must be redis or postgres")
	}
	repos := authhttp.PostgresRepos(dbpool, codes, cfg.ResendCooldown)

	opts := authhttp.Options{
		JWT:          security.NewJWTManager(cfg.JWTSecret, cfg.AccessTTL, cfg.EmailTokenTTL),
		Domains:      policy.NewAllowList(cfg.AllowedDomains...),
		CodeTTL:      cfg.CodeTTL,
		RefreshTTL:   cfg.RefreshTTL,
		AllowDevMode: cfg.AllowDevMode,
		Mailer:       notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.AppURL, cfg.CodeTTL),
		RateLimit:    ratelimit.Middleware(ratelimit.NewLimiter(rdbClient, log), cfg.RateLimit, cfg.RateLimitWindow),
		Logger:       log,
	}
	if cfg.AllowDevMode {
		log.Warn("dev mode enabled: codes may be returned in responses")
	}

	store, err := storage.NewS3Store(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.UploadTTL)
	if err != nil {
		log.Warn("ID upload disabled", zap.Error(err))
	} else {
		opts.Storage = store
	}

	if cfg.GeminiAPIKey != "" {
		gem, err := vision.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		defer gem.Close()
		opts.Vision = gem
	} else {
		log.Warn("GEMINI_API_KEY not set, ID verification disabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		k := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer k.Close()
		opts.Events = k
	}

	app := phttp.NewServer(phttp.Options{
		AppName: "campus-auth",
		Logger:  log,
		Ready: func() error {
			pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := dbpool.Ping(pctx); err != nil {
				return err
			}
			return rdbClient.Ping(pctx).Err()
		},
	}, authhttp.NewModule(repos, opts))

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("code_store", cfg.CodeStore),
		zap.Strings("domains", opts.Domains.Domains()))
	return app.Listen(cfg.HTTPAddr)
}
