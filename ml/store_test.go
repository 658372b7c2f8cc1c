package ml

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingModel struct {
	p     float64
	calls atomic.Int64
	err   error
}

func (m *countingModel) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []float64{1 - m.p, m.p}, nil
}

func (m *countingModel) NumFeatures() int { return NumFeatures }

func (m *countingModel) Info() string { return "counting" }

func staticLoader(model Classifier) func() (Classifier, error) {
	return func() (Classifier, error) { return model, nil }
}

func TestModelStoreCachesIdenticalVectors(t *testing.T) {
	model := &countingModel{p: 0.4}
	store, err := NewModelStore(staticLoader(model), 16)
	require.NoError(t, err)

	features := make([]float64, NumFeatures)
	for i := 0; i < 3; i++ {
		dist, err := store.PredictProba(context.Background(), features)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, dist[PositiveClass], 1e-9)
		dist[PositiveClass] = 99
	}
	assert.EqualValues(t, 1, model.calls.Load())

	hits, misses := store.CacheStats()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
}

func TestModelStoreWithoutCache(t *testing.T) {
	model := &countingModel{p: 0.4}
	store, err := NewModelStore(staticLoader(model), 0)
	require.NoError(t, err)

	features := make([]float64, NumFeatures)
	for i := 0; i < 3; i++ {
		_, err := store.PredictProba(context.Background(), features)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, model.calls.Load())
}

func TestModelStoreDoesNotCacheErrors(t *testing.T) {
	model := &countingModel{err: errors.New("boom")}
	store, err := NewModelStore(staticLoader(model), 16)
	require.NoError(t, err)

	features := make([]float64, NumFeatures)
	for i := 0; i < 2; i++ {
		_, err := store.PredictProba(context.Background(), features)
		require.Error(t, err)
	}
	assert.EqualValues(t, 2, model.calls.Load())
}

func TestModelStoreSwapPurgesCache(t *testing.T) {
	first := &countingModel{p: 0.1}
	store, err := NewModelStore(staticLoader(first), 16)
	require.NoError(t, err)

	features := make([]float64, NumFeatures)
	_, err = store.PredictProba(context.Background(), features)
	require.NoError(t, err)

	second := &countingModel{p: 0.9}
	store.Swap(second)
	dist, err := store.PredictProba(context.Background(), features)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, dist[PositiveClass], 1e-9)
	assert.Equal(t, Classifier(second), store.Current())
}

func TestModelStoreReloadKeepsModelOnFailure(t *testing.T) {
	good := &countingModel{p: 0.3}
	fail := false
	store, err := NewModelStore(func() (Classifier, error) {
		if fail {
			return nil, errors.New("corrupt artifact")
		}
		return good, nil
	}, 4)
	require.NoError(t, err)

	fail = true
	require.Error(t, store.Reload())
	assert.Equal(t, Classifier(good), store.Current())
	assert.Equal(t, "counting", store.Info())
}

func TestNewModelStoreFailsWhenFirstLoadFails(t *testing.T) {
	_, err := NewModelStore(func() (Classifier, error) {
		return nil, errors.New("missing")
	}, 4)
	assert.Error(t, err)
}
