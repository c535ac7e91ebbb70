package workspace

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/repository"
)

const listCacheKey = "workspaces:list"

// Cache is the subset of the cache client the service needs. A nil Cache
// turns the service into a plain repository passthrough.
type Cache interface {
	GetJSON(ctx context.Context, key string, value interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, prefix string) error
}

// Service fronts the workspace repository with a read-through list cache.
// The list backs the project switcher and is hit on every dashboard load;
// everything else goes straight to the database.
type Service struct {
	repo   repository.WorkspaceRepository
	cache  Cache
	logger *zap.Logger
}

func NewService(repo repository.WorkspaceRepository, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// List returns all workspaces, serving from cache when possible. Cache
// failures fall back to the repository and are logged, not returned.
func (s *Service) List(ctx context.Context) ([]domain.Workspace, error) {
	if s.cache != nil {
		var cached []domain.Workspace
		hit, err := s.cache.GetJSON(ctx, listCacheKey, &cached)
		if err != nil {
			s.logger.Warn("workspace cache read failed", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	workspaces, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, listCacheKey, workspaces); err != nil {
			s.logger.Warn("workspace cache write failed", zap.Error(err))
		}
	}

	return workspaces, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Workspace, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	if ws.Name == "" {
		return domain.Workspace{}, fmt.Errorf("workspace name is required")
	}

	created, err := s.repo.Create(ctx, ws)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("failed to create workspace: %w", err)
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *Service) Update(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	updated, err := s.repo.Update(ctx, ws)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("failed to update workspace: %w", err)
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, listCacheKey); err != nil {
		s.logger.Warn("workspace cache invalidation failed", zap.Error(err))
	}
}
