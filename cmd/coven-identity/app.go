// ABOUTME: Composition root wiring config into store, OTP, token, identity and auth services
// ABOUTME: Each command builds one app and closes it when done

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/2389/coven-identity/internal/auth"
	"github.com/2389/coven-identity/internal/config"
	"github.com/2389/coven-identity/internal/delivery"
	"github.com/2389/coven-identity/internal/identity"
	"github.com/2389/coven-identity/internal/otp"
	"github.com/2389/coven-identity/internal/replay"
	"github.com/2389/coven-identity/internal/store"
	"github.com/2389/coven-identity/internal/token"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.SQLiteStore
	redis  *redis.Client
	otp    *otp.Engine
	tokens *token.Service
	auth   *auth.Service
}

func loadConfig() (*config.Config, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: setupLogger(cfg.Logging)}

	a.store, err = store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	sender, err := a.buildSender()
	if err != nil {
		a.Close()
		return nil, err
	}

	var otpStore store.OTPStore = a.store
	if cfg.OTP.Backend == config.BackendRedis {
		otpStore = otp.NewRedisStore(a.redis, a.logger)
	}

	limits := otp.LimitConfig{
		Cooldown:  cfg.OTP.Cooldown,
		Window:    cfg.OTP.Window,
		MaxIssues: cfg.OTP.MaxPerWindow,
	}
	var limiter otp.Limiter
	if limits.Cooldown > 0 || limits.MaxIssues > 0 {
		if a.redis != nil {
			limiter = otp.NewRedisLimiter(a.redis, limits)
		} else {
			// Each command is its own process; limits live in the database
			limiter = otp.NewStoreLimiter(a.store, limits, nil)
		}
	}

	a.otp = otp.NewEngine(otpStore, sender, otp.Config{
		TTL:     cfg.OTP.TTL,
		Digits:  cfg.OTP.Digits,
		Limiter: limiter,
	}, a.logger)

	a.tokens, err = token.NewService(token.Config{
		Issuer:             cfg.Auth.Issuer,
		AccessSecret:       []byte(cfg.Auth.AccessSecret),
		RefreshSecret:      []byte(cfg.Auth.RefreshSecret),
		ResetSecret:        []byte(cfg.Auth.ResetSecret),
		AccessTTL:          cfg.Auth.AccessTTL,
		RefreshTTL:         cfg.Auth.RefreshTTL,
		RefreshExtendedTTL: cfg.Auth.RefreshExtendedTTL,
		ResetTTL:           cfg.Auth.ResetTTL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	// Reset tokens are spent where the rest of the shared state lives
	var guard auth.ReplayGuard = a.store
	if a.redis != nil {
		guard = replay.NewRedisGuard(a.redis)
	}

	var verifier auth.IdentityVerifier
	if cfg.Google.ClientID != "" {
		validator, err := identity.NewGoogleValidator(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		gv, err := identity.NewGoogleVerifier(validator, cfg.Google.ClientID, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		verifier = gv
	}

	a.auth, err = auth.NewService(auth.Deps{
		Users:    a.store,
		OTP:      a.otp,
		Tokens:   a.tokens,
		Identity: verifier,
		Replay:   guard,
		Audit:    a.store,
		Hasher:   auth.BcryptHasher{Cost: cfg.Auth.BcryptCost},
		Logger:   a.logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) buildSender() (otp.Sender, error) {
	switch a.cfg.Delivery.Mode {
	case config.DeliverySMTP:
		smtpSender, err := delivery.NewSMTPSender(delivery.SMTPConfig{
			Host:     a.cfg.Delivery.SMTP.Host,
			Port:     a.cfg.Delivery.SMTP.Port,
			Username: a.cfg.Delivery.SMTP.Username,
			Password: a.cfg.Delivery.SMTP.Password,
			From:     a.cfg.Delivery.SMTP.From,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("configuring smtp delivery: %w", err)
		}
		if a.cfg.Logging.Level == "debug" {
			return delivery.MultiSender{smtpSender, delivery.NewLogSender(a.logger)}, nil
		}
		return smtpSender, nil
	default:
		return delivery.NewLogSender(a.logger), nil
	}
}

// Close releases the database and Redis connections.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// errorText renders flow errors by kind and public message.
func errorText(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return fmt.Sprintf("%s (%s)", authErr.PublicMessage(), authErr.Kind)
	}
	return err.Error()
}
