package convert

import (
	"reflect"
	"sync"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// Converter is the runtime object that (de)serializes one shape: a pair of
// (write, read), optionally with async siblings and a JSON-schema
// fragment. It operates over reflect.Value because
// the concrete type is only known once the shape tree is walked at
// runtime; the facade's generic entry points do the one reflect.Value
// <-> T conversion at the boundary.
type Converter interface {
	Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error
	Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error)
	ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error)
	WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error
	PreferAsync() bool
	JSONSchema() map[string]any
}

// delayedConverter is the placeholder the cache installs for a shape
// whose construction is still in progress. Recursive requests for the
// same shape identity receive this placeholder instead of recursing
// into build() again; once the real converter finishes building, target
// is swapped in and every holder of the placeholder forwards to it.
type delayedConverter struct {
	mu     sync.RWMutex
	target Converter
}

func (d *delayedConverter) resolve() Converter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.target
}

func (d *delayedConverter) finish(c Converter) {
	d.mu.Lock()
	d.target = c
	d.mu.Unlock()
}

func (d *delayedConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return d.resolve().Write(ctx, w, v)
}
func (d *delayedConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return d.resolve().Read(ctx, r)
}
func (d *delayedConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	return d.resolve().ReadAsync(ctx, sr, fetch)
}
func (d *delayedConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return d.resolve().WriteAsync(ctx, w, v)
}
func (d *delayedConverter) PreferAsync() bool         { return d.resolve().PreferAsync() }
func (d *delayedConverter) JSONSchema() map[string]any { return d.resolve().JSONSchema() }

// Cache is the shape-keyed, thread-safe memoizing table of Converters.
// It owns the builder Visitor so that configuration (threaded through
// Policy) and cycle-safety are both scoped to one cache instance;
// resetting configuration means constructing a new Cache.
//
// Grounded on cereal/registry.go's getOrBuildPlans: read-mostly RWMutex
// with a double-checked write path. Here the in-flight map additionally
// lets concurrent builders of the SAME shape share one delayedConverter
// instead of racing to build it twice.
type Cache struct {
	policy *Policy

	mu       sync.RWMutex
	done     map[shape.Identity]Converter
	inFlight map[shape.Identity]*delayedConverter

	// primitives is the closed primitive table, built once per Cache since it
	// never depends on anything recursive.
	primitives map[reflect.Type]Converter

	// converterFactories holds runtime-registered custom converters by
	// name.
	converterFactories map[string]customConverterFactory
}

// NewCache constructs an empty Cache bound to policy.
func NewCache(policy *Policy) *Cache {
	return &Cache{
		policy:              policy,
		done:                make(map[shape.Identity]Converter),
		inFlight:            make(map[shape.Identity]*delayedConverter),
		primitives:          PrimitiveTable(),
		converterFactories:  make(map[string]customConverterFactory),
	}
}

// RegisterConverterFactory installs a named custom converter factory,
// consulted before any other resolution step.
func (c *Cache) RegisterConverterFactory(name string, factory func(s *shape.Shape) (Converter, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.converterFactories[name] = factory
}

// Get returns the cached converter for s if present.
func (c *Cache) Get(s *shape.Shape) (Converter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if conv, ok := c.done[s.ID()]; ok {
		return conv, true
	}
	if d, ok := c.inFlight[s.ID()]; ok {
		return d, true
	}
	return nil, false
}

// GetOrBuild returns s's converter, building it via the Visitor on first
// use. Recursive requests observed while the build is still running
// (cycle through a self-referential shape graph) receive the in-flight
// delayedConverter, which is safe to store inside the parent converter
// because by the time anyone calls through it, finish() will have run.
func (c *Cache) GetOrBuild(s *shape.Shape) (Converter, error) {
	c.mu.RLock()
	if conv, ok := c.done[s.ID()]; ok {
		c.mu.RUnlock()
		return conv, nil
	}
	if d, ok := c.inFlight[s.ID()]; ok {
		c.mu.RUnlock()
		return d, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if conv, ok := c.done[s.ID()]; ok {
		c.mu.Unlock()
		return conv, nil
	}
	if d, ok := c.inFlight[s.ID()]; ok {
		c.mu.Unlock()
		return d, nil
	}
	d := &delayedConverter{}
	c.inFlight[s.ID()] = d
	c.mu.Unlock()

	v := &Visitor{cache: c, policy: c.policy}
	conv, err := v.build(s)
	if err != nil {
		c.mu.Lock()
		delete(c.inFlight, s.ID())
		c.mu.Unlock()
		return nil, err
	}

	d.finish(conv)

	c.mu.Lock()
	c.done[s.ID()] = conv
	delete(c.inFlight, s.ID())
	c.mu.Unlock()

	return conv, nil
}
