package decorator

import (
	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/cache"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/index"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/security"
)

// Factory builds the decorator chain around backend repositories. The
// chain is fixed and ordered from the caller inwards: permission checks
// run first, then validation, referential integrity, index maintenance,
// caching and finally audit logging in front of the backend adapter.
type Factory struct {
	evaluator  security.Evaluator
	registry   *meta.Registry
	resolver   RepositoryResolver
	dispatcher *index.Dispatcher
	cache      cache.Cache
	log        *zap.Logger
}

// NewFactory creates a decorator factory
func NewFactory(
	evaluator security.Evaluator,
	registry *meta.Registry,
	resolver RepositoryResolver,
	dispatcher *index.Dispatcher,
	c cache.Cache,
	log *zap.Logger,
) *Factory {
	return &Factory{
		evaluator:  evaluator,
		registry:   registry,
		resolver:   resolver,
		dispatcher: dispatcher,
		cache:      c,
		log:        log,
	}
}

// Decorate wraps a backend repository in the full decorator chain
func (f *Factory) Decorate(backend data.Repository) data.Repository {
	var repo data.Repository = backend
	repo = NewAuditDecorator(repo, f.log)
	if f.cache != nil {
		repo = NewCachingDecorator(repo, f.cache, f.registry)
	}
	if f.dispatcher != nil {
		repo = NewIndexingDecorator(repo, f.dispatcher)
	}
	repo = NewIntegrityDecorator(repo, f.registry, f.resolver)
	repo = NewValidationDecorator(repo)
	repo = NewPermissionDecorator(repo, f.evaluator)
	return repo
}
