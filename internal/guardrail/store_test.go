package guardrail

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

func TestNewStoreRejectsInvalidPolicy(t *testing.T) {
	bad := testPolicy()
	bad.RBAC = nil

	_, err := NewStore(bad, nil, nil, zap.NewNop())
	require.Error(t, err)
}

func TestStoreSwap(t *testing.T) {
	initial := testPolicy()
	store, err := NewStore(initial, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, initial, store.Current())

	t.Run("valid snapshot replaces current", func(t *testing.T) {
		next := testPolicy()
		next.ScalingLimits.MaxInstances = 50
		require.NoError(t, store.Swap(next))
		assert.Equal(t, 50, store.Current().ScalingLimits.MaxInstances)
	})

	t.Run("invalid snapshot rejected, current survives", func(t *testing.T) {
		before := store.Current()
		broken := testPolicy()
		broken.ChangeWindows["production"] = domain.ChangeWindow{AllowedHours: []int{25}}

		require.Error(t, store.Swap(broken))
		assert.Same(t, before, store.Current())
	})
}

func TestStoreReload(t *testing.T) {
	t.Run("loader error keeps current snapshot", func(t *testing.T) {
		store, err := NewStore(testPolicy(), func() (*domain.PolicyConfig, error) {
			return nil, errors.New("source unavailable")
		}, nil, zap.NewNop())
		require.NoError(t, err)

		before := store.Current()
		require.Error(t, store.Reload())
		assert.Same(t, before, store.Current())
	})

	t.Run("loader result becomes active", func(t *testing.T) {
		fresh := testPolicy()
		fresh.ProdLockdown.RequiredApprovals = 5

		store, err := NewStore(testPolicy(), func() (*domain.PolicyConfig, error) {
			return fresh, nil
		}, nil, zap.NewNop())
		require.NoError(t, err)

		require.NoError(t, store.Reload())
		assert.Equal(t, 5, store.Current().ProdLockdown.RequiredApprovals)
	})
}

// Читатели не должны видеть частичных обновлений: снапшот подменяется целиком.
func TestStoreConcurrentReaders(t *testing.T) {
	store, err := NewStore(testPolicy(), nil, nil, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cfg := store.Current()
				// Снапшот всегда валиден как единое целое
				assert.NotEmpty(t, cfg.RBAC)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		next := testPolicy()
		next.ScalingLimits.MaxInstances = i + 1
		require.NoError(t, store.Swap(next))
	}
	wg.Wait()
}
