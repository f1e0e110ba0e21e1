// Package manifest defines the on-disk case manifest.
// Every case directory carries a case.json describing the case and its
// geometry objects; its presence is what distinguishes a case from an
// arbitrary directory.
package manifest

import (
	"errors"
	"time"
)

// FileName is the manifest file name inside a case directory.
const FileName = "case.json"

// ProtectedGeometry is the geometry record that can never be removed.
// The fluid region is created from the base template and everything else
// in the case references it.
const ProtectedGeometry = "fluid"

// Sentinel errors for manifest operations.
var (
	ErrNotFound          = errors.New("manifest not found")
	ErrGeometryExists    = errors.New("geometry already exists")
	ErrGeometryNotFound  = errors.New("geometry not found")
	ErrProtectedGeometry = errors.New("geometry is protected")
	ErrLockTimeout       = errors.New("failed to acquire manifest lock")
)

// GeometryRecord describes one geometry object registered with the case.
// File is relative to the case directory.
type GeometryRecord struct {
	Name          string     `json:"name"`
	File          string     `json:"file"`
	Visible       bool       `json:"visible"`
	Position      [3]float64 `json:"position"`
	Rotation      [3]float64 `json:"rotation"`
	ProbePosition [3]float64 `json:"probe_position"`
}

// Manifest is the persisted case description.
type Manifest struct {
	Version     int              `json:"version"`
	ID          string           `json:"id"`
	Created     time.Time        `json:"created"`
	Modified    time.Time        `json:"modified"`
	Description string           `json:"description"`
	Geometries  []GeometryRecord `json:"geometries"`
}

// New creates a manifest for a fresh case.
func New(id string, now time.Time) *Manifest {
	return &Manifest{
		Version:    1,
		ID:         id,
		Created:    now,
		Modified:   now,
		Geometries: []GeometryRecord{},
	}
}

// AddGeometry appends a geometry record.
// Returns ErrGeometryExists if a record with the same name is present.
func (m *Manifest) AddGeometry(rec GeometryRecord) error {
	for _, g := range m.Geometries {
		if g.Name == rec.Name {
			return ErrGeometryExists
		}
	}
	m.Geometries = append(m.Geometries, rec)
	return nil
}

// RemoveGeometry deletes the named geometry record.
// The protected record cannot be removed.
func (m *Manifest) RemoveGeometry(name string) error {
	if name == ProtectedGeometry {
		return ErrProtectedGeometry
	}

	for i, g := range m.Geometries {
		if g.Name == name {
			m.Geometries = append(m.Geometries[:i], m.Geometries[i+1:]...)
			return nil
		}
	}
	return ErrGeometryNotFound
}

// Geometry returns the named geometry record.
func (m *Manifest) Geometry(name string) (*GeometryRecord, bool) {
	for i := range m.Geometries {
		if m.Geometries[i].Name == name {
			return &m.Geometries[i], true
		}
	}
	return nil, false
}
