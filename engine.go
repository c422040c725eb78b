// Package dalcore maps tabular query results onto Go models and back into
// query parameters. Struct tags describe the mapping; an Engine caches
// everything derived from them.
package dalcore

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Engine owns the four mapping caches: model descriptors, accessor sets,
// populate routines and runtime shapes. An Engine is safe for concurrent use;
// create one per process (or per test) and share it.
type Engine struct {
	opts Options

	descriptors onceCache[reflect.Type, *ModelDescriptor]
	accessors   onceCache[reflect.Type, *AccessorSet]
	routines    onceCache[routineKey, *PopulateRoutine]
	shapes      onceCache[string, *RuntimeShape]

	// typeIDs numbers the model types used as child lists of shapes.
	typeIDs    sync.Map // reflect.Type -> uint64
	nextTypeID atomic.Uint64
}

// New creates an Engine with empty caches.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

// Options returns the effective options of the engine.
func (e *Engine) Options() Options {
	return e.opts
}

// Stats returns cache hit/miss counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Descriptors: e.descriptors.stats(),
		Accessors:   e.accessors.stats(),
		Routines:    e.routines.stats(),
		Shapes:      e.shapes.stats(),
	}
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// DefaultEngine returns the lazily created process-wide Engine used by the
// package-level helpers.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() { defaultEngine = New() })
	return defaultEngine
}

// typeID returns the engine-local number of t.
func (e *Engine) typeID(t reflect.Type) uint64 {
	if id, ok := e.typeIDs.Load(t); ok {
		return id.(uint64)
	}
	id, _ := e.typeIDs.LoadOrStore(t, e.nextTypeID.Add(1))
	return id.(uint64)
}
