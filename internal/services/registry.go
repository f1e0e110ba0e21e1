// Package services provides the process-wide service registry.
// Every shared component (config, session manager, loader, job controller)
// is registered once during startup in dependency order and resolved
// explicitly by key; there are no package-level singletons outside the
// registry itself.
package services

import (
	"errors"
	"fmt"
	"sync"
)

// Key identifies a registered service.
type Key string

// Well-known service keys, registered during CLI startup.
const (
	KeyConfig     Key = "config"
	KeyLogger     Key = "logger"
	KeyBus        Key = "bus"
	KeyManifests  Key = "manifests"
	KeySessions   Key = "sessions"
	KeyJanitor    Key = "janitor"
	KeyLoader     Key = "loader"
	KeyJobs       Key = "jobs"
	KeyController Key = "controller"
	KeyExecutor   Key = "executor"
	KeyJobLogs    Key = "joblogs"
	KeyPrompter   Key = "prompter"
)

// Sentinel errors for registry operations.
var (
	ErrNotRegistered     = errors.New("service not registered")
	ErrAlreadyRegistered = errors.New("service already registered")
	ErrWrongType         = errors.New("service has unexpected type")
)

// NotRegisteredError reports a lookup for a key that was never registered.
// This is a programming error (missing startup wiring), not a user-facing
// condition.
type NotRegisteredError struct {
	Key Key
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("service %q is not registered", e.Key)
}

func (e *NotRegisteredError) Unwrap() error {
	return ErrNotRegistered
}

// Registry maps service keys to singleton instances. It is populated once
// at startup and treated as read-only afterwards; Replace and Reset exist
// for test setup and teardown. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]any
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]any)}
}

// Register binds key to instance.
// Returns ErrAlreadyRegistered if the key is already bound; use Replace
// when overriding is intended.
func (r *Registry) Register(key Key, instance any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}
	r.entries[key] = instance
	return nil
}

// Replace binds key to instance, overwriting any existing binding.
// Intended for test setup only.
func (r *Registry) Replace(key Key, instance any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = instance
}

// Resolve returns the instance bound to key.
// Returns a *NotRegisteredError if the key was never registered.
func (r *Registry) Resolve(key Key) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.entries[key]
	if !ok {
		return nil, &NotRegisteredError{Key: key}
	}
	return instance, nil
}

// MustResolve returns the instance bound to key or panics.
// Use only during startup wiring where a missing service is fatal anyway.
func (r *Registry) MustResolve(key Key) any {
	instance, err := r.Resolve(key)
	if err != nil {
		panic(err)
	}
	return instance
}

// Reset clears all registrations. Intended for test teardown only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[Key]any)
}

// Keys returns the registered keys in unspecified order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Get resolves key and asserts the instance to T.
func Get[T any](r *Registry, key Key) (T, error) {
	var zero T

	instance, err := r.Resolve(key)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %T", ErrWrongType, key, instance, zero)
	}
	return typed, nil
}

// MustGet resolves key as T or panics. Startup wiring only.
func MustGet[T any](r *Registry, key Key) T {
	typed, err := Get[T](r, key)
	if err != nil {
		panic(err)
	}
	return typed
}
