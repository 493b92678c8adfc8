package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/model"
)

const defaultDocTypeCacheTTL = 5 * time.Minute

// DocTypeServiceOptions groups dependencies for DocTypeService.
type DocTypeServiceOptions struct {
	Repo     core.DocTypeRepository
	Cache    core.ConfigCache // optional
	CacheTTL time.Duration    // optional, defaults to 5m
	Logger   *slog.Logger     // optional
}

// DocTypeService resolves document-type configurations with a read-through
// cache in front of the repository. Owner-scoped configs shadow global ones;
// the repository handles that fallback, the cache just keys on both.
type DocTypeService struct {
	repo   core.DocTypeRepository
	cache  core.ConfigCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewDocTypeService constructs a DocTypeService.
func NewDocTypeService(opts DocTypeServiceOptions) (*DocTypeService, error) {
	if opts.Repo == nil {
		return nil, errors.New("doctype service: repo is required")
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultDocTypeCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocTypeService{
		repo:   opts.Repo,
		cache:  opts.Cache,
		ttl:    ttl,
		logger: logger.With("component", "doctype_service"),
	}, nil
}

// MustNewDocTypeService constructs a DocTypeService and panics on error.
func MustNewDocTypeService(opts DocTypeServiceOptions) *DocTypeService {
	s, err := NewDocTypeService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return s
}

// Resolve returns the config for a code scoped to the owner, falling back to
// the global definition. Returns (nil, nil) when no config exists: an unknown
// document type is an issue for the rule engine, not a pipeline error.
func (s *DocTypeService) Resolve(ctx context.Context, code, ownerID string) (*model.DocumentTypeConfig, error) {
	if cfg, ok := s.cacheGet(ctx, code, ownerID); ok {
		return cfg, nil
	}

	cfg, err := s.repo.GetByCode(ctx, code, ownerID)
	if errors.Is(err, data.ErrDocTypeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve document type %q: %w", code, err)
	}

	s.cacheSet(ctx, code, ownerID, cfg)
	return cfg, nil
}

// Upsert stores a config and invalidates cached resolutions that may now be
// stale. A global upsert invalidates only the global key; owner-scoped
// resolutions expire on their TTL.
func (s *DocTypeService) Upsert(ctx context.Context, cfg *model.DocumentTypeConfig) error {
	if cfg == nil {
		return errors.New("doctype config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate doctype config: %w", err)
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return fmt.Errorf("upsert doctype config: %w", err)
	}
	s.cacheInvalidate(ctx, cfg.Code, cfg.OwnerID)
	return nil
}

// List returns configs visible to an owner, global ones included.
func (s *DocTypeService) List(ctx context.Context, ownerID string) ([]*model.DocumentTypeConfig, error) {
	return s.repo.List(ctx, ownerID)
}

func docTypeCacheKey(code, ownerID string) string {
	if ownerID == "" {
		return "doctype:global:" + code
	}
	return "doctype:" + ownerID + ":" + code
}

func (s *DocTypeService) cacheGet(ctx context.Context, code, ownerID string) (*model.DocumentTypeConfig, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, docTypeCacheKey(code, ownerID))
	if err != nil {
		if !errors.Is(err, data.ErrCacheMiss) {
			s.logger.Debug("doctype cache get failed", "code", code, "error", err)
		}
		return nil, false
	}
	var cfg model.DocumentTypeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		s.logger.Debug("doctype cache entry corrupt", "code", code, "error", err)
		return nil, false
	}
	return &cfg, true
}

func (s *DocTypeService) cacheSet(ctx context.Context, code, ownerID string, cfg *model.DocumentTypeConfig) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	// Best-effort population; a cache failure never fails the resolution.
	if err := s.cache.Set(ctx, docTypeCacheKey(code, ownerID), raw, s.ttl); err != nil {
		s.logger.Debug("doctype cache set failed", "code", code, "error", err)
	}
}

func (s *DocTypeService) cacheInvalidate(ctx context.Context, code, ownerID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, docTypeCacheKey(code, ownerID)); err != nil {
		s.logger.Debug("doctype cache invalidate failed", "code", code, "error", err)
	}
}
