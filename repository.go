package strata

import (
	"reflect"

	"go.uber.org/zap"
)

// Repository is a stack of Registry layers. Layer 0 is the permanent base;
// further layers are nested scopes whose registrations and instances shadow
// the ones below without destroying them.
//
// Methods not specific to layering (Register, Add, AddResolver, ...) act on
// the topmost layer, so a Repository can stand in for a single Registry.
// A Repository is not safe for concurrent use.
type Repository struct {
	layers     []*Registry
	stack      *lookupStack
	logger     *zap.Logger
	middleware *middlewareChain
}

// New creates a repository with a base layer using the default resolver
// chain, unless replaced with WithResolvers.
func New(opts ...Option) *Repository {
	o := newOptions(opts)
	stack := &lookupStack{}

	return &Repository{
		layers:     []*Registry{newLayer(o.resolvers, o.logger, stack, nil)},
		stack:      stack,
		logger:     o.logger,
		middleware: newMiddlewareChain(),
	}
}

// Current returns the topmost layer.
func (r *Repository) Current() *Registry {
	return r.layers[len(r.layers)-1]
}

// Base returns the permanent base layer.
func (r *Repository) Base() *Registry {
	return r.layers[0]
}

// Depth returns the number of layers, the base included.
func (r *Repository) Depth() int {
	return len(r.layers)
}

// Use adds middleware to the repository.
// Middleware is called in the order they are added.
func (r *Repository) Use(middleware Middleware) {
	r.middleware.add(middleware)
}

// Get returns the current instance for key: a reflect.Type, an alias, or a
// func resolved as an ad-hoc factory.
//
// Layers are searched from the top down. The first layer caching an
// instance for the key returns it. A layer that only holds a registration
// lends it to the topmost layer, which builds and caches the instance; a
// CannotResolve from that attempt falls through to the layers below. When no
// layer knows the key, the topmost layer registers and builds it.
func (r *Repository) Get(key any) (any, error) {
	return r.lookup(key, nil)
}

// GetWith builds a new, uncached instance with the given arguments.
func (r *Repository) GetWith(key any, kwargs Kwargs) (any, error) {
	if kwargs == nil {
		kwargs = Kwargs{}
	}
	return r.lookup(key, kwargs)
}

// lookup wraps get with the middleware chain.
func (r *Repository) lookup(key any, kwargs Kwargs) (any, error) {
	name := keyName(key)

	if err := r.middleware.beforeResolve(name); err != nil {
		return nil, err
	}

	instance, err := r.get(key, kwargs)

	if mwErr := r.middleware.afterResolve(name, instance, err); mwErr != nil {
		return nil, mwErr
	}

	return instance, err
}

func (r *Repository) get(key any, kwargs Kwargs) (any, error) {
	top := r.Current()

	if _, ok, _ := adHocFactory(key); ok {
		return top.get(key, kwargs, r)
	}

	var lastErr error

	for i := len(r.layers) - 1; i >= 0; i-- {
		layer := r.layers[i]

		t, err := layer.keyType(key)
		if err != nil {
			continue
		}

		if kwargs == nil {
			if instance, ok := layer.current(t); ok {
				return instance, nil
			}
		}

		reg, ok := layer.types[t]
		if !ok {
			continue
		}

		instance, err := top.build(t, reg, kwargs, r)
		if err == nil {
			return instance, nil
		}
		if !IsCannotResolve(err) {
			return nil, err
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return top.get(key, kwargs, r)
}

// GetMany returns the cached instances for key of every layer, base first.
func (r *Repository) GetMany(key any) ([]any, error) {
	var (
		all   []any
		known bool
		err   error
	)

	for _, layer := range r.layers {
		t, keyErr := layer.keyType(key)
		if keyErr != nil {
			err = keyErr
			continue
		}
		known = true
		all = append(all, layer.getMany(t)...)
	}

	if !known {
		return nil, err
	}

	return all, nil
}

// Create builds a new instance of t in the topmost layer, resolving its
// dependencies through the whole repository.
func (r *Repository) Create(t reflect.Type) (any, error) {
	return r.Current().create(t, nil, r)
}

// Register registers a type in the topmost layer. See Registry.Register.
func (r *Repository) Register(target any, opts ...RegisterOption) error {
	return r.Current().Register(target, opts...)
}

// Replace swaps a registration in the topmost layer.
func (r *Repository) Replace(reg Registration) error {
	return r.Current().Replace(reg)
}

// Add caches an instance in the topmost layer and binds its Lazy fields to
// the repository. See Registry.Add.
func (r *Repository) Add(instance any, opts ...AddOption) error {
	return r.Current().add(instance, r, opts)
}

// AddResolver installs a resolver ahead of the others in the topmost layer.
func (r *Repository) AddResolver(resolver Resolver) {
	r.Current().AddResolver(resolver)
}

// Resolvers returns the resolver chain of the topmost layer.
func (r *Repository) Resolvers() []Resolver {
	return r.Current().Resolvers()
}

// Lookup returns the type registered under name in the nearest layer.
func (r *Repository) Lookup(name string) (reflect.Type, bool) {
	for i := len(r.layers) - 1; i >= 0; i-- {
		if t, ok := r.layers[i].Lookup(name); ok {
			return t, true
		}
	}
	return nil, false
}

// Registration returns the registration of t from the nearest layer.
func (r *Repository) Registration(t reflect.Type) (Registration, bool) {
	for i := len(r.layers) - 1; i >= 0; i-- {
		if reg, ok := r.layers[i].Registration(t); ok {
			return reg, true
		}
	}
	return Registration{}, false
}

// Has reports whether any layer caches an instance of t.
func (r *Repository) Has(t reflect.Type) bool {
	for _, layer := range r.layers {
		if layer.Has(t) {
			return true
		}
	}
	return false
}

// keyName returns a readable name for a lookup key.
func keyName(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case reflect.Type:
		return typeName(k)
	case *FuncFactory:
		return funcName(reflect.ValueOf(k.fn))
	}
	if v := reflect.ValueOf(key); v.IsValid() && v.Kind() == reflect.Func {
		return funcName(v)
	}
	return "<invalid>"
}
