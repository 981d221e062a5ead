// Package platform assembles the entity access stack: metadata registry,
// storage engines, decorator pipeline, permission registry, index and
// cache. Bootstrap is two-phase: phase one registers the self-describing
// system schemas directly on the registry, phase two persists their rows
// through the fully decorated pipeline.
package platform

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/backend/memory"
	"github.com/metagrid-platform/metagrid/internal/backend/sqlbackend"
	"github.com/metagrid-platform/metagrid/internal/cache"
	"github.com/metagrid-platform/metagrid/internal/config"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/decorator"
	"github.com/metagrid-platform/metagrid/internal/index"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/security"
)

// Platform holds the assembled components
type Platform struct {
	Registry   *meta.Registry
	Grants     *security.GrantStore
	Service    *data.Service
	Dispatcher *index.Dispatcher
	Index      *index.MemoryIndex
	Cache      cache.Cache

	factory   *decorator.Factory
	memEngine *memory.Engine
	sqlEngine *sqlbackend.Engine
	log       *zap.Logger
}

// New assembles a platform from configuration and runs the bootstrap
func New(cfg *config.Config, log *zap.Logger) (*Platform, error) {
	registry := meta.NewRegistry()

	p := &Platform{
		Registry:  registry,
		Grants:    security.NewGrantStore(),
		memEngine: memory.NewEngine(),
		log:       log,
	}

	if cfg.Database.Backend == "sql" {
		engine, err := sqlbackend.Open(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open sql backend: %w", err)
		}
		p.sqlEngine = engine
	}

	switch cfg.Cache.Backend {
	case "memory":
		p.Cache = cache.NewMemoryCache()
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Config:   cache.DefaultConfig(),
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		p.Cache = rc
	}

	p.Index = index.NewMemoryIndex()
	p.Dispatcher = index.NewDispatcher(p.Index, log, cfg.Index.QueueSize)

	var runner data.TransactionRunner = p.memEngine
	if p.sqlEngine != nil {
		runner = p.sqlEngine
	}
	p.Service = data.NewService(registry, runner)
	p.factory = decorator.NewFactory(p.Grants, registry, p.Service, p.Dispatcher, p.Cache, log)

	if err := p.bootstrap(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// bootstrap registers the system schemas and persists their rows
func (p *Platform) bootstrap(ctx context.Context) error {
	for _, pkg := range meta.SystemPackages() {
		p.Registry.RegisterPackage(pkg)
	}

	systemTypes := meta.SystemEntityTypes()
	// Phase 1: the system schemas reference each other and themselves, so
	// they enter the registry relaxed before cross-validation applies.
	for _, et := range systemTypes {
		if err := p.Registry.RegisterRelaxed(et); err != nil {
			return fmt.Errorf("register system type %s: %w", et.ID, err)
		}
	}
	for _, et := range systemTypes {
		if err := p.mountRepository(ctx, et); err != nil {
			return err
		}
	}

	security.SeedGrants(p.Grants)

	// Phase 2: system rows flow through the decorated pipeline as the
	// system subject, making the metadata model self-hosted. Entity type
	// rows go in before attribute rows because attribute rows reference
	// them, then the attributes mref is filled in.
	sysCtx := security.WithSubject(ctx, security.System())
	return p.Service.RunInTransaction(sysCtx, func(txCtx context.Context) error {
		for _, pkg := range meta.SystemPackages() {
			if err := p.persistPackage(txCtx, pkg); err != nil {
				return err
			}
		}
		for _, et := range systemTypes {
			if err := p.persistEntityTypeRow(txCtx, et); err != nil {
				return err
			}
		}
		for _, et := range systemTypes {
			if err := p.persistAttributeRows(txCtx, et); err != nil {
				return err
			}
		}
		return nil
	})
}

// mountRepository creates the backend storage for an entity type, wraps
// it in the decorator chain and registers it with the service
func (p *Platform) mountRepository(ctx context.Context, et *meta.EntityType) error {
	if et.Abstract {
		return nil
	}
	var backend data.Repository
	switch et.Backend {
	case "", memory.Backend:
		backend = p.memEngine.CreateRepository(et)
	case sqlbackend.Backend:
		if p.sqlEngine == nil {
			return fmt.Errorf("entity type %s requires the sql backend, which is not configured", et.ID)
		}
		repo, err := p.sqlEngine.CreateRepository(ctx, et)
		if err != nil {
			return err
		}
		backend = repo
	default:
		return fmt.Errorf("unknown backend %q for entity type %s", et.Backend, et.ID)
	}
	p.Service.RegisterRepository(p.factory.Decorate(backend))
	return nil
}

// CreateEntityType registers a new entity type at runtime, creates its
// backend storage and persists its metadata rows through the pipeline.
// Permission checks apply through the decorated metadata repositories,
// so the caller needs WRITEMETA on the metadata types.
func (p *Platform) CreateEntityType(ctx context.Context, et *meta.EntityType) error {
	if err := p.Registry.Register(et); err != nil {
		return err
	}
	if err := p.mountRepository(ctx, et); err != nil {
		p.Registry.Remove(et.ID)
		return err
	}
	err := p.Service.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := p.persistEntityTypeRow(txCtx, et); err != nil {
			return err
		}
		return p.persistAttributeRows(txCtx, et)
	})
	if err != nil {
		p.unmountRepository(ctx, et)
		p.Registry.Remove(et.ID)
		return err
	}
	return nil
}

// DeleteEntityType drops an entity type, its storage, its metadata rows
// and its index documents
func (p *Platform) DeleteEntityType(ctx context.Context, entityTypeID string) error {
	et, ok := p.Registry.EntityType(entityTypeID)
	if !ok {
		return data.NewUnknownEntityType(entityTypeID)
	}
	if meta.IsSystem(entityTypeID) {
		return data.NewPermissionDenied(security.PermissionWriteMeta.String(), entityTypeID)
	}
	var names []string
	for _, ref := range p.Registry.ReferrersTo(entityTypeID) {
		if ref.EntityType.ID != entityTypeID {
			names = append(names, ref.EntityType.ID)
		}
	}
	if len(names) > 0 {
		return data.NewValidation(fmt.Sprintf(
			"Entity type '%s' is referenced by %s", entityTypeID, strings.Join(names, ", ")))
	}
	if err := p.removeEntityTypeRows(ctx, et); err != nil {
		return err
	}
	p.unmountRepository(ctx, et)
	p.Registry.Remove(entityTypeID)
	return nil
}

func (p *Platform) unmountRepository(ctx context.Context, et *meta.EntityType) {
	if err := p.Service.RemoveRepository(et.ID); err != nil {
		p.log.Warn("remove repository", zap.String("entityType", et.ID), zap.Error(err))
	}
	switch et.Backend {
	case sqlbackend.Backend:
		if p.sqlEngine != nil {
			if err := p.sqlEngine.DropRepository(ctx, et); err != nil {
				p.log.Warn("drop sql repository", zap.String("entityType", et.ID), zap.Error(err))
			}
		}
	default:
		p.memEngine.DropRepository(et.ID)
	}
}

// Close releases the platform's resources. The index dispatcher drains
// before the cache and database close.
func (p *Platform) Close() error {
	p.Dispatcher.Close()
	var firstErr error
	if p.Cache != nil {
		if mc, ok := p.Cache.(*cache.MemoryCache); ok {
			mc.Close()
		}
		if rc, ok := p.Cache.(*cache.RedisCache); ok {
			if err := rc.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if p.sqlEngine != nil {
		if err := p.sqlEngine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
