package strata

import (
	"reflect"

	"go.uber.org/zap"
)

// Registration describes how a type is built. It is copied when registered
// and never changes afterwards; use Replace to swap it.
type Registration struct {
	// Type is the registered type.
	Type reflect.Type
	// Factory builds instances: nil (build Type itself), another
	// reflect.Type, a func returning (T) or (T, error), or a *FuncFactory.
	Factory any
	// Transient registrations are never cached: every Get builds anew.
	Transient bool
	// Kwargs are passed to the factory on every construction. Caller kwargs
	// take precedence.
	Kwargs Kwargs
	// As lists interface types Type is also registered and cached under.
	As []reflect.Type
	// Aliases are extra names Type can be looked up by.
	Aliases []string
}

// RegisterOption is a configuration option for type registration.
type RegisterOption func(*Registration)

// WithFactory sets the factory used to build the type.
//
// Example:
//
//	repo.Register(strata.TypeOf[Store](), strata.WithFactory(NewPostgresStore))
func WithFactory(factory any) RegisterOption {
	return func(r *Registration) {
		r.Factory = factory
	}
}

// WithKwargs sets arguments passed to the factory on every construction.
func WithKwargs(kwargs Kwargs) RegisterOption {
	return func(r *Registration) {
		if r.Kwargs == nil {
			r.Kwargs = make(Kwargs, len(kwargs))
		}
		for k, v := range kwargs {
			r.Kwargs[k] = v
		}
	}
}

// Transient makes the type created on each Get instead of cached.
func Transient() RegisterOption {
	return func(r *Registration) {
		r.Transient = true
	}
}

// As registers the type under additional interface types, which become its
// ancestors: instances are cached under them as well.
//
// Example:
//
//	repo.Register(strata.TypeOf[*FileStore](), strata.As(new(Reader), new(Writer)))
func As(ifaces ...any) RegisterOption {
	return func(r *Registration) {
		for _, iface := range ifaces {
			t, ok := iface.(reflect.Type)
			if !ok {
				t = reflect.TypeOf(iface)
				if t != nil && t.Kind() == reflect.Pointer {
					t = t.Elem()
				}
			}
			r.As = append(r.As, t)
		}
	}
}

// WithAlias registers extra names the type can be looked up by.
func WithAlias(names ...string) RegisterOption {
	return func(r *Registration) {
		r.Aliases = append(r.Aliases, names...)
	}
}

// addConfig holds configuration for adding an instance.
type addConfig struct {
	shallow bool
	typ     reflect.Type
}

// AddOption configures how an instance is added.
type AddOption func(*addConfig)

// Shallow caches the instance under its exact type only, not its ancestors.
func Shallow() AddOption {
	return func(c *addConfig) {
		c.shallow = true
	}
}

// ForType caches the instance under t instead of its dynamic type.
// The instance must be assignable to t.
func ForType(t reflect.Type) AddOption {
	return func(c *addConfig) {
		c.typ = t
	}
}

// options holds configuration for repositories and registries.
type options struct {
	logger    *zap.Logger
	resolvers []Resolver
}

// Option configures a Repository or Registry.
type Option func(*options)

// WithLogger sets the logger used for debug events. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResolvers replaces the default resolver chain.
func WithResolvers(resolvers ...Resolver) Option {
	return func(o *options) {
		o.resolvers = append([]Resolver(nil), resolvers...)
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:    zap.NewNop(),
		resolvers: DefaultResolvers(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
