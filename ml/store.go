package ml

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

type featureKey [NumFeatures]float64

// ModelStore holds the active classifier and lets it be replaced while requests are
// in flight. Identical feature vectors are answered from an LRU cache that is purged
// whenever the model changes.
type ModelStore struct {
	current atomic.Pointer[modelBox]
	cache   *lru.Cache[featureKey, []float64]
	loader  func() (Classifier, error)

	hits   atomic.Int64
	misses atomic.Int64
}

type modelBox struct {
	model Classifier
}

// NewModelStore loads the first model with loader. cacheSize 0 disables caching.
func NewModelStore(loader func() (Classifier, error), cacheSize int) (*ModelStore, error) {
	if loader == nil {
		return nil, errors.New("model loader is required")
	}
	s := &ModelStore{loader: loader}
	if cacheSize > 0 {
		cache, err := lru.New[featureKey, []float64](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create inference cache: %w", err)
		}
		s.cache = cache
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ModelStore) Current() Classifier {
	box := s.current.Load()
	if box == nil {
		return nil
	}
	return box.model
}

func (s *ModelStore) Swap(model Classifier) {
	s.current.Store(&modelBox{model: model})
	if s.cache != nil {
		s.cache.Purge()
	}
}

// Reload runs the loader again. The previous model stays active when it fails.
func (s *ModelStore) Reload() error {
	model, err := s.loader()
	if err != nil {
		return err
	}
	if model == nil {
		return errors.New("model loader returned no model")
	}
	s.Swap(model)
	return nil
}

func (s *ModelStore) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	box := s.current.Load()
	if box == nil {
		return nil, errors.New("no model loaded")
	}
	model := box.model
	if s.cache == nil || len(features) != NumFeatures {
		return model.PredictProba(ctx, features)
	}

	var key featureKey
	copy(key[:], features)
	if dist, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return append([]float64(nil), dist...), nil
	}
	s.misses.Add(1)
	dist, err := model.PredictProba(ctx, features)
	if err != nil {
		return nil, err
	}
	// a concurrent Swap may have purged the cache already; skip caching a stale answer
	if s.current.Load() == box {
		s.cache.Add(key, append([]float64(nil), dist...))
	}
	return dist, nil
}

func (s *ModelStore) NumFeatures() int {
	if model := s.Current(); model != nil {
		return model.NumFeatures()
	}
	return 0
}

func (s *ModelStore) Info() string {
	if model := s.Current(); model != nil {
		return model.Info()
	}
	return "no model loaded"
}

// CacheStats reports cache hits and misses since the store was created.
func (s *ModelStore) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
