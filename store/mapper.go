package store

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/robert-malhotra/querykit/engine"
)

// ErrMapperNotRegistered is returned by projected materializers when no
// mapper exists for the requested source/target shape pair. It is
// detected before any query executes.
var ErrMapperNotRegistered = fmt.Errorf("%w: mapper not registered", engine.ErrConfiguration)

type mapperKey struct {
	src reflect.Type
	dst reflect.Type
}

// MapperRegistry holds row-shape mappers, keyed by source and target
// shape. It is an explicit configuration object scoped to the stores it
// is handed to, not process-wide state.
type MapperRegistry struct {
	mu      sync.RWMutex
	mappers map[mapperKey]any
}

// NewMapperRegistry returns an empty registry.
func NewMapperRegistry() *MapperRegistry {
	return &MapperRegistry{mappers: make(map[mapperKey]any)}
}

// RegisterMapper records the transform from rows of S to values of D.
// Registering the same pair twice replaces the earlier transform.
func RegisterMapper[S, D any](r *MapperRegistry, fn func(S) D) {
	key := mapperKey{
		src: reflect.TypeOf((*S)(nil)).Elem(),
		dst: reflect.TypeOf((*D)(nil)).Elem(),
	}
	r.mu.Lock()
	r.mappers[key] = fn
	r.mu.Unlock()
}

func mapperFor[S, D any](r *MapperRegistry) (func(S) D, error) {
	key := mapperKey{
		src: reflect.TypeOf((*S)(nil)).Elem(),
		dst: reflect.TypeOf((*D)(nil)).Elem(),
	}
	if r != nil {
		r.mu.RLock()
		raw, ok := r.mappers[key]
		r.mu.RUnlock()
		if ok {
			return raw.(func(S) D), nil
		}
	}
	return nil, fmt.Errorf("%w: %v -> %v", ErrMapperNotRegistered, key.src, key.dst)
}
