package scene

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger is the logging surface used by the Registry and Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches scenes in front of a Repository. The cache is loaded by
// RefreshCache and kept current by the CRUD methods. Callers always get
// deep copies.
//
// All methods are safe for concurrent use.
type Registry struct {
	repo    Repository
	cache   map[string]*Scene
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Scene),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every scene from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	scenes, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading scenes: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Scene, len(scenes))
	for i := range scenes {
		r.cache[scenes[i].ID] = scenes[i].DeepCopy()
	}

	r.logger.Info("scene cache refreshed", "count", len(scenes))
	return nil
}

// GetScene returns the scene with the given ID.
func (r *Registry) GetScene(_ context.Context, id string) (*Scene, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if !ok {
		return nil, ErrSceneNotFound
	}
	return cached.DeepCopy(), nil
}

// ListScenes returns every scene, sorted by sort_order then name. A
// non-empty roomID keeps only the scenes bound to that room.
func (r *Registry) ListScenes(_ context.Context, roomID string) ([]Scene, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	scenes := make([]Scene, 0, len(r.cache))
	for _, s := range r.cache {
		if roomID != "" && (s.RoomID == nil || *s.RoomID != roomID) {
			continue
		}
		scenes = append(scenes, *s.DeepCopy())
	}
	sortScenes(scenes)
	return scenes, nil
}

func sortScenes(scenes []Scene) {
	sort.Slice(scenes, func(i, j int) bool {
		if scenes[i].SortOrder != scenes[j].SortOrder {
			return scenes[i].SortOrder < scenes[j].SortOrder
		}
		return scenes[i].Name < scenes[j].Name
	})
}

// CreateScene fills in the ID and slug when absent, validates, persists and
// caches s.
func (r *Registry) CreateScene(ctx context.Context, s *Scene) error {
	if s.ID == "" {
		s.ID = GenerateID()
	}
	if s.Slug == "" {
		s.Slug = GenerateSlug(s.Name)
	}
	if err := ValidateScene(s); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("scene created", "id", s.ID, "name", s.Name)
	return nil
}

// UpdateScene validates, persists and re-caches s. The creation time of
// the stored scene is kept.
func (r *Registry) UpdateScene(ctx context.Context, s *Scene) error {
	if s.Slug == "" {
		s.Slug = GenerateSlug(s.Name)
	}
	if err := ValidateScene(s); err != nil {
		return err
	}

	r.cacheMu.RLock()
	existing, ok := r.cache[s.ID]
	r.cacheMu.RUnlock()
	if ok {
		s.CreatedAt = existing.CreatedAt
	}

	if err := r.repo.Update(ctx, s); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("scene updated", "id", s.ID, "name", s.Name)
	return nil
}

// DeleteScene removes a scene from the repository and the cache.
func (r *Registry) DeleteScene(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("scene deleted", "id", id)
	return nil
}

// ListExecutions returns recent activations of a scene, newest first.
func (r *Registry) ListExecutions(ctx context.Context, sceneID string, limit int) ([]Execution, error) {
	if _, err := r.GetScene(ctx, sceneID); err != nil {
		return nil, err
	}
	return r.repo.ListExecutions(ctx, sceneID, limit)
}

// SceneCount returns the number of cached scenes.
func (r *Registry) SceneCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
