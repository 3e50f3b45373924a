package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/1001054/Data-Disguise/internal/compiler"
	"github.com/1001054/Data-Disguise/internal/config"
	"github.com/1001054/Data-Disguise/internal/distlock"
	"github.com/1001054/Data-Disguise/internal/engine"
	"github.com/1001054/Data-Disguise/internal/service"
	"github.com/1001054/Data-Disguise/internal/store"
	"github.com/1001054/Data-Disguise/internal/target"
)

// session holds the connections one command runs against.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	target *target.SQLStore
	vault  *store.Store
	redis  *redis.Client
	svc    *service.Service
}

// loadConfig reads the config file and environment overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the slog logger for cfg. --verbose forces debug level.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openSession loads configuration and connects to the target, the vault and,
// when configured, Redis. Logs go to logOut.
func openSession(ctx context.Context, opts *RootOptions, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	s := &session{cfg: cfg, logger: newLogger(cfg.Log, opts.Verbose, logOut)}

	s.logger.Debug("opening target", "driver", cfg.Target.Driver)
	if s.target, err = target.Open(cfg.Target.Driver, cfg.Target.DSN); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open target", err)
	}

	s.logger.Debug("opening vault", "driver", cfg.Vault.Driver)
	if s.vault, err = store.Open(cfg.Vault.Driver, cfg.Vault.DSN); err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open vault", err)
	}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to reach redis at %s", cfg.Redis.Addr), err)
		}
	}

	e := engine.New(s.target, s.vault, engine.WithLogger(s.logger))

	svcOpts := []service.Option{service.WithLogger(s.logger)}
	if locks := distlock.NewFactory(s.redis, s.lockDB(), cfg.Redis.LockTTL); locks != nil {
		svcOpts = append(svcOpts, service.WithLocks(locks))
	}
	if info, err := os.Stat(cfg.Policies.Dir); err == nil && info.IsDir() {
		svcOpts = append(svcOpts, service.WithPolicySource(compiler.Source{Dir: cfg.Policies.Dir}))
	} else {
		s.logger.Debug("no policy directory, inline transformations only", "dir", cfg.Policies.Dir)
	}
	s.svc = service.New(e, svcOpts...)

	return s, nil
}

// lockDB returns the vault's connection pool when it can hold advisory locks.
func (s *session) lockDB() *sql.DB {
	if s.vault != nil && s.vault.DriverName() == "postgres" {
		return s.vault.DB()
	}
	return nil
}

// Close releases every open connection.
func (s *session) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("error closing redis", "error", err)
		}
	}
	if s.vault != nil {
		if err := s.vault.Close(); err != nil {
			s.logger.Error("error closing vault", "error", err)
		}
	}
	if s.target != nil {
		if err := s.target.Close(); err != nil {
			s.logger.Error("error closing target", "error", err)
		}
	}
}
