package ml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeLeafTree(path string, positive float64) error {
	body := fmt.Sprintf(`{"n_features": 10, "nodes": [{"is_leaf": true, "value": [%g, %g]}]}`, 1-positive, positive)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func TestWatchModelReloadsOnReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, writeLeafTree(path, 0.25))

	store, err := NewModelStore(func() (Classifier, error) {
		return LoadModel(ModelDecisionTree, path)
	}, 8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchModel(ctx, store, path, zap.NewNop(), func(err error) {
			select {
			case reloads <- err:
			default:
			}
		})
	}()

	features := make([]float64, NumFeatures)
	require.Eventually(t, func() bool {
		if err := writeLeafTree(path, 0.75); err != nil {
			return false
		}
		select {
		case err := <-reloads:
			return err == nil
		case <-time.After(time.Second):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	dist, err := store.PredictProba(context.Background(), features)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, dist[PositiveClass], 1e-9)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
