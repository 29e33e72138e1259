package oracle

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bondoracle/config"
	"bondoracle/models"
	"bondoracle/observability/logging"
	telemetry "bondoracle/observability/otel"
	"bondoracle/referral"
	"bondoracle/server"
	"bondoracle/signer"
	"bondoracle/store"
	"bondoracle/verify"
)

const serviceName = "bond-oracle"

// Main runs the oracle daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to oracle config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Service:     serviceName,
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		Service:     serviceName,
		Environment: cfg.Log.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	sgn, err := signer.New(cfg.SignerKey, cfg.ChainID, cfg.VerifyingContract)
	if err != nil {
		return fmt.Errorf("load signer key: %w", err)
	}
	logger.Info("attestation signer ready",
		"address", sgn.Address().Hex(),
		"chainId", cfg.ChainID,
		"contract", cfg.VerifyingContract,
	)

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	referralCfg := referral.Config{
		CodeLength:          cfg.Referral.CodeLength,
		RewardPerConversion: cfg.Referral.RewardPerConversion,
	}
	var ledger referral.Ledger
	if cfg.DatabaseURL == "" {
		logger.Warn("no database_url configured, referral ledger and completions are in-memory")
		ledger = referral.NewMemoryLedger(referralCfg)
	} else {
		ledger = referral.NewSQLLedger(db, referralCfg)
	}

	twitter, err := verify.NewTwitterClient(verify.TwitterConfig{
		BearerToken:   cfg.Twitter.BearerToken,
		TargetUserID:  cfg.Twitter.TargetUserID,
		MentionHandle: cfg.Twitter.MentionHandle,
		MemeHashtags:  cfg.Twitter.MemeHashtags,
		Window:        time.Duration(cfg.Twitter.WindowHours) * time.Hour,
		Timeout:       cfg.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("twitter client: %w", err)
	}
	discord, err := verify.NewDiscordClient(verify.DiscordConfig{
		BotToken:  cfg.Discord.BotToken,
		GuildID:   cfg.Discord.GuildID,
		MinTenure: time.Duration(cfg.Discord.MinTenureDays) * 24 * time.Hour,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("discord client: %w", err)
	}
	logger.Info("capability providers configured",
		logging.Secret("twitterBearer", cfg.Twitter.BearerToken),
		logging.Secret("discordBot", cfg.Discord.BotToken),
		"guildId", cfg.Discord.GuildID,
	)

	srv := server.New(server.Config{
		Store:          store.New(db),
		Ledger:         ledger,
		Signer:         sgn,
		Verifiers:      verify.NewTable(twitter, discord, verify.NewReferralVerifier(ledger)),
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(srv.Handler(), serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("oracle listening", "address", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// openDatabase connects to postgres when a URL is configured, otherwise it
// falls back to a process-local in-memory sqlite database for development.
func openDatabase(url string) (*gorm.DB, error) {
	if strings.TrimSpace(url) == "" {
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(postgres.Open(url), &gorm.Config{})
}
