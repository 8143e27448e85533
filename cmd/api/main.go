package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frutosdouro/conformidade/internal/alert"
	"github.com/frutosdouro/conformidade/internal/audits"
	"github.com/frutosdouro/conformidade/internal/audittrail"
	"github.com/frutosdouro/conformidade/internal/auth"
	"github.com/frutosdouro/conformidade/internal/cert"
	"github.com/frutosdouro/conformidade/internal/config"
	"github.com/frutosdouro/conformidade/internal/db"
	internalhttp "github.com/frutosdouro/conformidade/internal/http"
	"github.com/frutosdouro/conformidade/internal/mailer"
	"github.com/frutosdouro/conformidade/internal/obs"
	"github.com/frutosdouro/conformidade/internal/policy"
	"github.com/frutosdouro/conformidade/internal/rbac"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/service"
	"github.com/frutosdouro/conformidade/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	obs.Init()

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis parse: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
	}

	var uploader storage.Uploader = storage.NoopUploader{}
	switch cfg.Storage.Provider {
	case "", "noop":
		// mantém uploader padrão
	case "s3", "r2":
		uploader, err = storage.NewS3Uploader(storage.S3Config{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			Bucket:       cfg.Storage.S3Bucket,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			PublicDomain: cfg.Storage.S3PublicURL,
		})
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	default:
		return fmt.Errorf("storage: provedor %s não suportado", cfg.Storage.Provider)
	}

	repository := repo.New(pool)
	trail := audittrail.New(audittrail.NewRepository(pool), log.With().Str("component", "audittrail").Logger())
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)

	authService := service.NewAuthService(repository, redisClient, jwtManager, trail, cfg.JWTRefreshTTL)
	userService := service.NewUserService(repository, trail)
	rbacService := rbac.NewService(repository, redisClient, trail, log.With().Str("component", "rbac").Logger())

	certRepo := cert.NewRepository(pool)
	certService := cert.NewService(certRepo, trail, nil, uploader, log.With().Str("component", "cert").Logger())

	alertRepo := alert.NewRepository(pool)
	var sender mailer.Sender
	if smtp := mailer.NewSMTPSender(cfg.Mail); smtp != nil {
		sender = smtp
	}
	sweeper := alert.NewService(certRepo, alertRepo, sender, trail, nil, cfg.Alerts, log.With().Str("component", "sweep").Logger())
	sweeper.Start(ctx)
	defer sweeper.Stop()

	auditService := audits.NewService(audits.NewRepository(pool), trail)
	policyService := policy.NewService(policy.NewRepository(pool), trail)

	handler := internalhttp.NewRouter(cfg, pool, redisClient, internalhttp.Services{
		Auth:     authService,
		Users:    userService,
		RBAC:     rbacService,
		Certs:    certService,
		Audits:   auditService,
		Policies: policyService,
		Alerts:   alertRepo,
		Sweeper:  sweeper,
		Trail:    trail,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
