package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/tier-router/config"
	"github.com/upb/tier-router/internal/auth"
	"github.com/upb/tier-router/internal/narrative"
	"github.com/upb/tier-router/middleware"
	"github.com/upb/tier-router/repositories"
	"github.com/upb/tier-router/repositories/memory"
	"github.com/upb/tier-router/repositories/postgres"
	"github.com/upb/tier-router/services/audit"
	placementsvc "github.com/upb/tier-router/services/placement"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when no database is configured
	Logger *zap.Logger

	// Decision log
	Decisions repositories.DecisionRepository
	Recorder  *audit.Recorder

	// Services
	Placement *placementsvc.Service
	Templates *narrative.Loader

	// Auth; nil when AUTH_JWT_SECRET is unset
	AuthMiddleware *middleware.AuthMiddleware
	TokenIssuer    *auth.HMACValidator

	// Per-caller throttling; nil when RATE_LIMIT_RPS is unset
	RateLimiter *middleware.RateLimiter

	stopCleanup   context.CancelFunc
	cleanupDone   chan struct{}
	stopRateLimit context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDecisionLog(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRecorder(cfg); err != nil {
		deps.closeDB()
		return nil, fmt.Errorf("failed to start decision recorder: %w", err)
	}

	deps.Placement = placementsvc.NewService(deps.Decisions, deps.Recorder, logger)
	deps.initTemplates(cfg)

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initRateLimit(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDecisionLog connects to PostgreSQL when configured and falls back to an
// in-memory log otherwise.
func (d *Dependencies) initDecisionLog(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Decisions = memory.NewDecisionRepository(cfg.Audit.MemoryCapacity)
		d.Logger.Warn("database not configured, keeping decisions in memory",
			zap.Int("capacity", cfg.Audit.MemoryCapacity))
		return nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}

	d.DB = db
	d.Decisions = postgres.NewDecisionRepository(db, d.Logger)
	return nil
}

func (d *Dependencies) initRecorder(cfg *config.Config) error {
	d.Recorder = audit.NewRecorder(d.Decisions, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
	})
	return d.Recorder.Start()
}

func (d *Dependencies) initTemplates(cfg *config.Config) {
	cache := narrative.NewTemplateCache(cfg.Narrative.CacheSize, cfg.Narrative.CacheTTL)
	d.Templates = narrative.NewLoader(cfg.Narrative.TemplatesDir, cfg.Narrative.DefaultLanguage, cache, d.Logger)

	if cfg.Narrative.CacheTTL > 0 && cfg.Narrative.CleanupInterval > 0 {
		cleanupCtx, cancel := context.WithCancel(context.Background())
		d.stopCleanup = cancel
		d.cleanupDone = make(chan struct{})
		go func() {
			defer close(d.cleanupDone)
			cache.StartCleanupWorker(cleanupCtx, cfg.Narrative.CleanupInterval)
		}()
	}

	// A bad template only breaks its own modality.
	if loaded, err := d.Templates.LoadAll(); err != nil {
		d.Logger.Warn("failed to preload narrative templates",
			zap.String("dir", cfg.Narrative.TemplatesDir),
			zap.Error(err))
	} else {
		d.Logger.Info("narrative templates loaded", zap.Int("count", len(loaded)))
	}
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set, placement API is unauthenticated")
		return nil
	}

	v, err := auth.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}
	d.TokenIssuer = v
	d.AuthMiddleware = middleware.NewAuthMiddleware(&hmacTokenValidatorAdapter{validator: v}, d.Logger)
	d.Logger.Info("bearer token auth enabled")
	return nil
}

func (d *Dependencies) initRateLimit(cfg *config.Config) {
	if !cfg.RateLimit.Enabled() {
		return
	}

	d.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		IdleTTL:           cfg.RateLimit.IdleTTL,
	}, d.Logger)

	if cfg.RateLimit.CleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.stopRateLimit = cancel
		d.RateLimiter.StartCleanupWorker(ctx, cfg.RateLimit.CleanupInterval)
	}

	d.Logger.Info("placement rate limit enabled",
		zap.Float64("rps", cfg.RateLimit.RequestsPerSecond),
		zap.Int("burst", cfg.RateLimit.Burst))
}

// hmacTokenValidatorAdapter adapts auth.HMACValidator to middleware.TokenValidator
type hmacTokenValidatorAdapter struct {
	validator *auth.HMACValidator
}

func (a *hmacTokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	p, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Sub:    p.Subject,
		Scopes: p.Scopes,
		Exp:    p.ExpiresAt.Unix(),
	}, nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		d.stopCleanup()
		<-d.cleanupDone
		d.stopCleanup = nil
	}
	if d.stopRateLimit != nil {
		d.stopRateLimit()
	}

	// Drain the recorder before the database goes away.
	if d.Recorder != nil {
		timeout := d.Config.Audit.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
				timeout = remaining
			}
		}
		if err := d.Recorder.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop decision recorder: %w", err))
		}
	}

	if err := d.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

func (d *Dependencies) closeDB() error {
	if d.DB == nil {
		return nil
	}
	err := d.DB.Close()
	d.DB = nil
	return err
}
