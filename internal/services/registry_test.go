package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	t.Run("registers and resolves same instance", func(t *testing.T) {
		reg := NewRegistry()
		instance := &struct{ n int }{n: 42}

		require.NoError(t, reg.Register(KeyConfig, instance))

		got, err := reg.Resolve(KeyConfig)
		require.NoError(t, err)
		assert.Same(t, instance, got)
	})

	t.Run("rejects duplicate key", func(t *testing.T) {
		reg := NewRegistry()

		require.NoError(t, reg.Register(KeyConfig, 1))
		err := reg.Register(KeyConfig, 2)

		assert.ErrorIs(t, err, ErrAlreadyRegistered)
	})
}

func TestRegistry_Replace(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(KeyLoader, "first"))
	reg.Replace(KeyLoader, "second")

	got, err := reg.Resolve(KeyLoader)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestRegistry_Resolve(t *testing.T) {
	t.Run("returns NotRegisteredError for missing key", func(t *testing.T) {
		reg := NewRegistry()

		_, err := reg.Resolve(KeyJobs)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotRegistered)

		var nre *NotRegisteredError
		require.ErrorAs(t, err, &nre)
		assert.Equal(t, KeyJobs, nre.Key)
	})

	t.Run("concurrent resolves see the registered instance", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(KeyBus, "bus"))

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := reg.Resolve(KeyBus)
				assert.NoError(t, err)
				assert.Equal(t, "bus", got)
			}()
		}
		wg.Wait()
	})
}

func TestRegistry_MustResolve(t *testing.T) {
	t.Run("panics on missing key", func(t *testing.T) {
		reg := NewRegistry()

		assert.Panics(t, func() {
			reg.MustResolve(KeyController)
		})
	})

	t.Run("returns instance when registered", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(KeyController, 7))

		assert.Equal(t, 7, reg.MustResolve(KeyController))
	})
}

func TestRegistry_Reset(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(KeyConfig, 1))

	reg.Reset()

	_, err := reg.Resolve(KeyConfig)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Empty(t, reg.Keys())
}

func TestGet(t *testing.T) {
	t.Run("returns typed instance", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(KeyLogger, "typed"))

		got, err := Get[string](reg, KeyLogger)

		require.NoError(t, err)
		assert.Equal(t, "typed", got)
	})

	t.Run("reports type mismatch", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(KeyLogger, 3))

		_, err := Get[string](reg, KeyLogger)

		assert.ErrorIs(t, err, ErrWrongType)
	})

	t.Run("propagates missing key", func(t *testing.T) {
		reg := NewRegistry()

		_, err := Get[string](reg, KeyLogger)

		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestMustGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(KeyExecutor, "exec"))

	assert.Equal(t, "exec", MustGet[string](reg, KeyExecutor))
	assert.Panics(t, func() {
		MustGet[int](reg, KeyExecutor)
	})
}

func TestRegistry_ConcurrentRegisterResolve(t *testing.T) {
	// Replace/Resolve racing must not corrupt the map.
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			reg.Replace(KeySessions, n)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = reg.Resolve(KeySessions) //nolint:errcheck // absence is fine mid-race
		}()
	}
	wg.Wait()

	_, err := reg.Resolve(KeySessions)
	require.NoError(t, err)
}

func TestRegistry_ErrorMessageNamesKey(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve(KeyJanitor)

	require.Error(t, err)
	assert.Contains(t, err.Error(), string(KeyJanitor))
	assert.True(t, errors.Is(err, ErrNotRegistered))
}
