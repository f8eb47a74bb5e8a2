package strata

import (
	"fmt"
	"maps"
	"reflect"

	"go.uber.org/zap"
)

// cached is one instance held by a layer and the types it is filed under.
type cached struct {
	value any
	typ   reflect.Type // type whose ancestry the instance follows
	deep  bool
	filed map[reflect.Type]bool
}

// registration is a Registration together with its analyzed factory.
type registration struct {
	Registration
	factory *Factory
}

// Registry is a single layer of registrations and cached instances.
//
// It owns three tables: aliases (name to type), registrations (type to
// registration, for a type and each of its ancestors) and instances (type to
// an append-only list, the last entry being current). A layer pushed by a
// Repository sees the registrations of the layers below it. A Registry is
// not safe for concurrent use.
type Registry struct {
	resolvers []Resolver
	aliases   map[string]reflect.Type
	types     map[reflect.Type]*registration
	instances map[reflect.Type][]any
	ifaces    []reflect.Type // registered interface types, in registration order
	cached    []*cached      // instances in the order added
	below     *Registry
	stack     *lookupStack
	logger    *zap.Logger
}

// NewRegistry creates an empty layer with the default resolver chain.
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts)
	return newLayer(o.resolvers, o.logger, &lookupStack{}, nil)
}

func newLayer(resolvers []Resolver, logger *zap.Logger, stack *lookupStack, below *Registry) *Registry {
	return &Registry{
		below:     below,
		resolvers: resolvers,
		aliases:   make(map[string]reflect.Type),
		types:     make(map[reflect.Type]*registration),
		instances: make(map[reflect.Type][]any),
		stack:     stack,
		logger:    logger,
	}
}

// Register adds a type registration. target is either a reflect.Type,
// configured by opts, or a complete Registration (or *Registration), in which
// case opts must be empty.
//
// The registration is stored for the type and every ancestor that has none
// yet, and each of them gets an alias by name. Existing entries are kept:
// the first registrant wins. Names ignore pointers, so *Foo and Foo (or two
// packages' Foo) share the alias "Foo" and the first registered owns it;
// use WithAlias to tell them apart.
//
// Registering an interface files the instances already cached in this layer
// that implement it, in the order they were added.
func (r *Registry) Register(target any, opts ...RegisterOption) error {
	reg, err := newRegistration(target, opts)
	if err != nil {
		return err
	}

	r.register(reg)

	return nil
}

// Replace swaps the registration of reg.Type. Ancestors that shared the old
// registration follow the new one.
func (r *Registry) Replace(reg Registration) error {
	next, err := newRegistration(reg, nil)
	if err != nil {
		return err
	}

	old, ok := r.types[next.Type]
	if !ok {
		r.register(next)
		return nil
	}

	for t, current := range r.types {
		if current == old {
			r.types[t] = next
		}
	}
	r.types[next.Type] = next
	r.register(next)

	r.logger.Debug("replaced registration", zap.String("type", typeName(next.Type)))

	return nil
}

// newRegistration validates target and builds an immutable registration.
func newRegistration(target any, opts []RegisterOption) (*registration, error) {
	var reg Registration

	switch v := target.(type) {
	case nil:
		return nil, ErrInvalidConfiguration("supply either a type or a registration")
	case Registration:
		if len(opts) > 0 {
			return nil, ErrInvalidConfiguration("supply either a type or a registration, not both")
		}
		reg = v
	case *Registration:
		if len(opts) > 0 {
			return nil, ErrInvalidConfiguration("supply either a type or a registration, not both")
		}
		if v == nil {
			return nil, ErrInvalidConfiguration("supply either a type or a registration")
		}
		reg = *v
	case reflect.Type:
		if v == nil {
			return nil, ErrInvalidConfiguration("supply either a type or a registration")
		}
		reg = Registration{Type: v}
		for _, opt := range opts {
			opt(&reg)
		}
	default:
		return nil, ErrTypeMismatch("a reflect.Type or Registration", target)
	}

	if reg.Type == nil {
		return nil, ErrInvalidConfiguration("registration has no type")
	}

	for _, iface := range reg.As {
		if iface == nil || iface.Kind() != reflect.Interface {
			return nil, ErrInvalidConfiguration(fmt.Sprintf("%s: As expects interface types, got %v", typeName(reg.Type), iface))
		}
		if !reg.Type.Implements(iface) {
			return nil, ErrInvalidConfiguration(fmt.Sprintf("%s does not implement %s", reg.Type, iface))
		}
	}

	factory, err := analyzeFactory(reg.Type, reg.Factory)
	if err != nil {
		return nil, err
	}

	reg.Kwargs = maps.Clone(reg.Kwargs)
	reg.As = append([]reflect.Type(nil), reg.As...)
	reg.Aliases = append([]string(nil), reg.Aliases...)

	return &registration{Registration: reg, factory: factory}, nil
}

// register stores reg for its type and every ancestor lacking an entry.
func (r *Registry) register(reg *registration) {
	for _, base := range r.ancestors(reg.Type, reg.As) {
		if _, exists := r.types[base]; exists {
			continue
		}
		r.types[base] = reg
		r.alias(typeName(base), base)
		if base.Kind() == reflect.Interface && base != anyType {
			r.ifaces = append(r.ifaces, base)
			r.backfill(base)
		}
	}

	for _, name := range reg.Aliases {
		r.alias(name, reg.Type)
	}

	r.logger.Debug("registered type", zap.String("type", typeName(reg.Type)), zap.String("factory", reg.factory.Name()))
}

// alias records name for t unless the name is taken.
func (r *Registry) alias(name string, t reflect.Type) {
	if _, exists := r.aliases[name]; !exists {
		r.aliases[name] = t
	}
}

// ancestors returns t, the interfaces t is declared or known to implement
// in this layer or the layers below, and finally the universal base type.
func (r *Registry) ancestors(t reflect.Type, declared []reflect.Type) []reflect.Type {
	chain := []reflect.Type{t}
	seen := map[reflect.Type]bool{t: true}

	push := func(base reflect.Type) {
		if !seen[base] {
			seen[base] = true
			chain = append(chain, base)
		}
	}

	for _, iface := range declared {
		push(iface)
	}
	for l := r; l != nil; l = l.below {
		if reg, ok := l.types[t]; ok {
			for _, iface := range reg.As {
				push(iface)
			}
		}
	}
	for l := r; l != nil; l = l.below {
		for _, iface := range l.ifaces {
			if t.Implements(iface) {
				push(iface)
			}
		}
	}
	push(anyType)

	return chain
}

// lookupRegistration finds the registration of t in this layer or the
// layers below.
func (r *Registry) lookupRegistration(t reflect.Type) (*registration, bool) {
	for l := r; l != nil; l = l.below {
		if reg, ok := l.types[t]; ok {
			return reg, true
		}
	}
	return nil, false
}

// ensure returns the visible registration of t, registering t in this layer
// when no layer knows it.
func (r *Registry) ensure(t reflect.Type) (*registration, error) {
	if reg, ok := r.lookupRegistration(t); ok {
		return reg, nil
	}
	if err := r.Register(t); err != nil {
		return nil, err
	}
	return r.types[t], nil
}

// file caches value under targets.
func (r *Registry) file(value any, typ reflect.Type, deep bool, targets []reflect.Type) {
	c := &cached{value: value, typ: typ, deep: deep, filed: make(map[reflect.Type]bool, len(targets))}
	r.cached = append(r.cached, c)

	for _, target := range targets {
		if c.filed[target] {
			continue
		}
		c.filed[target] = true
		r.instances[target] = append(r.instances[target], value)
	}
}

// backfill rebuilds the instance list of a newly registered interface from
// every deep instance of the layer that implements it.
func (r *Registry) backfill(iface reflect.Type) {
	var instances []any
	for _, c := range r.cached {
		if !c.filed[iface] && !(c.deep && c.typ.Implements(iface)) {
			continue
		}
		c.filed[iface] = true
		instances = append(instances, c.value)
	}
	if len(instances) > 0 {
		r.instances[iface] = instances
	}
}

// Add caches instance under its type and, unless Shallow is given, under
// every ancestor type up to and including any. Lazy fields of the instance
// are bound to the registry.
func (r *Registry) Add(instance any, opts ...AddOption) error {
	return r.add(instance, r, opts)
}

func (r *Registry) add(instance any, locator Locator, opts []AddOption) error {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	t := reflect.TypeOf(instance)
	if cfg.typ != nil {
		if t != nil && !t.AssignableTo(cfg.typ) {
			return ErrTypeMismatch(cfg.typ.String(), instance)
		}
		t = cfg.typ
	}
	if t == nil {
		return ErrTypeMismatch("a typed instance", instance)
	}

	if _, err := r.ensure(t); err != nil {
		return err
	}

	targets := []reflect.Type{t}
	if !cfg.shallow {
		targets = r.ancestors(t, nil)
	}
	r.file(instance, t, !cfg.shallow, targets)

	bindLazy(instance, locator)

	return nil
}

// store caches an instance created for t: under t and under the ancestors
// of its dynamic type.
func (r *Registry) store(t reflect.Type, instance any) error {
	dynamic := reflect.TypeOf(instance)
	if dynamic == nil {
		r.file(instance, t, false, []reflect.Type{t})
		return nil
	}

	if _, err := r.ensure(dynamic); err != nil {
		return err
	}

	targets := r.ancestors(dynamic, nil)
	if dynamic != t {
		targets = append([]reflect.Type{t}, targets...)
	}
	r.file(instance, dynamic, true, targets)

	return nil
}

// Get returns the current instance for key, creating and caching it on
// first request. key is a reflect.Type, an alias, or a func used as an
// ad-hoc factory whose result is never cached.
func (r *Registry) Get(key any) (any, error) {
	return r.get(key, nil, r)
}

// GetWith always builds a new instance, passing kwargs to the factory on top
// of the registration kwargs. The result is never cached.
func (r *Registry) GetWith(key any, kwargs Kwargs) (any, error) {
	if kwargs == nil {
		kwargs = Kwargs{}
	}
	return r.get(key, kwargs, r)
}

// GetMany returns every cached instance for key, in the order added.
// It never creates anything.
func (r *Registry) GetMany(key any) ([]any, error) {
	t, err := r.keyType(key)
	if err != nil {
		return nil, err
	}
	return r.getMany(t), nil
}

func (r *Registry) getMany(t reflect.Type) []any {
	return append([]any(nil), r.instances[t]...)
}

// get is Get with an explicit locator for nested lookups. A non-nil kwargs
// marks an explicit request that bypasses the cache.
func (r *Registry) get(key any, kwargs Kwargs, locator Locator) (any, error) {
	if f, ok, err := adHocFactory(key); ok {
		if err != nil {
			return nil, err
		}
		return r.resolve(f, stackEntry{name: f.Name()}, locator, kwargs)
	}

	t, err := r.keyType(key)
	if err != nil {
		return nil, err
	}

	instances := r.instances[t]
	if kwargs != nil || len(instances) == 0 {
		return r.create(t, kwargs, locator)
	}

	return instances[len(instances)-1], nil
}

// Create builds a new instance of t and caches it unless the registration
// is transient.
func (r *Registry) Create(t reflect.Type) (any, error) {
	return r.create(t, nil, r)
}

func (r *Registry) create(t reflect.Type, kwargs Kwargs, locator Locator) (any, error) {
	if t == nil {
		return nil, ErrTypeMismatch("a type", t)
	}

	reg, err := r.ensure(t)
	if err != nil {
		return nil, err
	}

	return r.build(t, reg, kwargs, locator)
}

// build creates an instance of t from reg, which may belong to another
// layer, and caches it in this layer.
func (r *Registry) build(t reflect.Type, reg *registration, kwargs Kwargs, locator Locator) (any, error) {
	if r.stack.contains(t) {
		return nil, ErrCircularDependency(r.stack.String())
	}

	store := kwargs == nil && !reg.Transient
	if len(reg.Kwargs) > 0 {
		merged := maps.Clone(reg.Kwargs)
		maps.Copy(merged, kwargs)
		kwargs = merged
	}

	instance, err := r.resolve(reg.factory, stackEntry{typ: t, name: typeName(t)}, locator, kwargs)
	if err != nil {
		return nil, err
	}

	if store {
		if err := r.store(t, instance); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("created instance", zap.String("type", typeName(t)), zap.Bool("stored", store))

	return instance, nil
}

// resolve runs the resolver chain for f and invokes it with the first
// argument set a resolver produces.
func (r *Registry) resolve(f *Factory, entry stackEntry, locator Locator, kwargs Kwargs) (any, error) {
	release := r.stack.push(entry)
	defer release()

	var lastErr error

	for _, resolver := range r.resolvers {
		deps, err := resolver.Dependencies(f, locator, kwargs)
		if err != nil {
			if !declined(err) {
				return nil, err
			}
			if IsCannotResolve(err) {
				lastErr = err
			}
			continue
		}

		args := make(Kwargs, len(deps)+len(kwargs))
		maps.Copy(args, deps)
		maps.Copy(args, kwargs)

		instance, err := f.invoke(args)
		if err != nil {
			return nil, err
		}

		bindLazy(instance, locator)

		return instance, nil
	}

	return nil, ErrCannotResolve(r.stack.String(), lastErr)
}

// keyType maps a key to the type it denotes.
func (r *Registry) keyType(key any) (reflect.Type, error) {
	switch k := key.(type) {
	case string:
		t, ok := r.aliases[k]
		if !ok {
			return nil, ErrCannotResolve(fmt.Sprintf("%q", k), fmt.Errorf("no type registered under %q", k))
		}
		return t, nil
	case reflect.Type:
		if k == nil {
			return nil, ErrTypeMismatch("a type", key)
		}
		return k, nil
	default:
		return nil, ErrTypeMismatch("a reflect.Type, alias or function", key)
	}
}

// adHocFactory reports whether key is a callable to resolve directly.
func adHocFactory(key any) (*Factory, bool, error) {
	switch k := key.(type) {
	case *FuncFactory:
		f, err := newFuncFactory(k.fn, k.names)
		return f, true, err
	case nil, string, reflect.Type:
		return nil, false, nil
	}
	if reflect.TypeOf(key).Kind() != reflect.Func {
		return nil, false, nil
	}
	f, err := newFuncFactory(key, nil)
	return f, true, err
}

// AddResolver installs a resolver ahead of the existing ones.
func (r *Registry) AddResolver(resolver Resolver) {
	r.resolvers = append([]Resolver{resolver}, r.resolvers...)
}

// Resolvers returns a copy of the resolver chain.
func (r *Registry) Resolvers() []Resolver {
	return append([]Resolver(nil), r.resolvers...)
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	t, ok := r.aliases[name]
	return t, ok
}

// Registration returns the registration of t.
func (r *Registry) Registration(t reflect.Type) (Registration, bool) {
	reg, ok := r.types[t]
	if !ok {
		return Registration{}, false
	}
	out := reg.Registration
	out.Kwargs = maps.Clone(out.Kwargs)
	out.As = append([]reflect.Type(nil), out.As...)
	out.Aliases = append([]string(nil), out.Aliases...)
	return out, true
}

// Has reports whether an instance of t is cached.
func (r *Registry) Has(t reflect.Type) bool {
	return len(r.instances[t]) > 0
}

// current returns the latest cached instance of t.
func (r *Registry) current(t reflect.Type) (any, bool) {
	instances := r.instances[t]
	if len(instances) == 0 {
		return nil, false
	}
	return instances[len(instances)-1], true
}
