package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	m := New("case-1", now)

	assert.Equal(t, 1, m.Version)
	assert.Equal(t, "case-1", m.ID)
	assert.Equal(t, now, m.Created)
	assert.Equal(t, now, m.Modified)
	assert.Empty(t, m.Geometries)
}

func TestManifest_AddGeometry(t *testing.T) {
	t.Run("adds record", func(t *testing.T) {
		m := New("case-1", time.Now())

		err := m.AddGeometry(GeometryRecord{Name: "nozzle", File: "geometry/nozzle.stl", Visible: true})

		require.NoError(t, err)
		require.Len(t, m.Geometries, 1)
		assert.Equal(t, "nozzle", m.Geometries[0].Name)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		m := New("case-1", time.Now())
		require.NoError(t, m.AddGeometry(GeometryRecord{Name: "nozzle"}))

		err := m.AddGeometry(GeometryRecord{Name: "nozzle"})

		assert.ErrorIs(t, err, ErrGeometryExists)
	})
}

func TestManifest_RemoveGeometry(t *testing.T) {
	t.Run("removes record", func(t *testing.T) {
		m := New("case-1", time.Now())
		require.NoError(t, m.AddGeometry(GeometryRecord{Name: "nozzle"}))
		require.NoError(t, m.AddGeometry(GeometryRecord{Name: "chamber"}))

		err := m.RemoveGeometry("nozzle")

		require.NoError(t, err)
		require.Len(t, m.Geometries, 1)
		assert.Equal(t, "chamber", m.Geometries[0].Name)
	})

	t.Run("rejects protected record", func(t *testing.T) {
		m := New("case-1", time.Now())
		require.NoError(t, m.AddGeometry(GeometryRecord{Name: ProtectedGeometry}))

		err := m.RemoveGeometry(ProtectedGeometry)

		assert.ErrorIs(t, err, ErrProtectedGeometry)
		assert.Len(t, m.Geometries, 1)
	})

	t.Run("reports missing record", func(t *testing.T) {
		m := New("case-1", time.Now())

		err := m.RemoveGeometry("nozzle")

		assert.ErrorIs(t, err, ErrGeometryNotFound)
	})
}

func TestManifest_Geometry(t *testing.T) {
	m := New("case-1", time.Now())
	require.NoError(t, m.AddGeometry(GeometryRecord{Name: "nozzle", Position: [3]float64{1, 2, 3}}))

	got, ok := m.Geometry("nozzle")
	require.True(t, ok)
	assert.Equal(t, [3]float64{1, 2, 3}, got.Position)

	_, ok = m.Geometry("missing")
	assert.False(t, ok)
}
