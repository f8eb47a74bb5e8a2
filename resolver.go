package strata

import (
	"fmt"
	"reflect"
)

// Kwargs holds named factory arguments.
type Kwargs map[string]any

// Locator is the view of a repository that resolvers and lazy fields use to
// look dependencies up. Both *Registry and *Repository implement it.
type Locator interface {
	// Get returns the current instance for key, creating it if needed.
	Get(key any) (any, error)
	// GetMany returns every cached instance for key without creating any.
	GetMany(key any) ([]any, error)
	// GetWith always builds a new, uncached instance with the given arguments.
	GetWith(key any, kwargs Kwargs) (any, error)
	// Lookup returns the type registered under an alias.
	Lookup(name string) (reflect.Type, bool)
}

// Resolver is a strategy that computes the arguments of a factory.
//
// A resolver does one of three things:
//   - returns the arguments to pass, which together with the caller kwargs
//     must be enough to invoke the factory;
//   - returns a CannotResolve error so the next resolver is tried;
//   - returns ErrPartiallyResolved after doing useful work (such as warming
//     up dependencies) without producing arguments; the next resolver is tried.
//
// Any other error aborts the resolution.
type Resolver interface {
	Dependencies(f *Factory, locator Locator, kwargs Kwargs) (Kwargs, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(f *Factory, locator Locator, kwargs Kwargs) (Kwargs, error)

// Dependencies implements Resolver.
func (fn ResolverFunc) Dependencies(f *Factory, locator Locator, kwargs Kwargs) (Kwargs, error) {
	return fn(f, locator, kwargs)
}

// DefaultResolvers returns the built-in chain: eager lazy-field warm-up,
// which never produces arguments, then type-driven injection.
func DefaultResolvers() []Resolver {
	return []Resolver{LazyResolver{}, TypeResolver{}}
}

// TypeResolver resolves every required parameter of a factory from its
// declared type.
//
// A parameter is required unless it is optional, variadic, or already
// present in the caller kwargs. Its value is:
//   - the type registered under its alias, for `inject:"Name"` parameters;
//   - every cached instance of T, for []T, iter.Seq[T], map[T]struct{} and
//     map[T]bool parameters;
//   - the current instance of its type otherwise.
//
// Parameters declared as `any` have no usable type and are only satisfied
// through kwargs or an alias.
type TypeResolver struct{}

// Dependencies implements Resolver.
func (TypeResolver) Dependencies(f *Factory, locator Locator, kwargs Kwargs) (Kwargs, error) {
	if !f.Constructible() {
		return nil, ErrCannotResolve(f.Name(), fmt.Errorf("%s has no constructor", f.Name()))
	}

	deps := make(Kwargs)

	for _, param := range f.Params() {
		if param.Optional || param.Variadic {
			continue
		}
		if _, ok := kwargs[param.Name]; ok {
			continue
		}

		value, err := resolveParam(param, locator)
		if err != nil {
			if IsCannotResolve(err) {
				return nil, ErrCannotResolve(fmt.Sprintf("%s.%s", f.Name(), param.Name), err)
			}
			return nil, err
		}
		deps[param.Name] = value
	}

	return deps, nil
}

// resolveParam resolves a single parameter from the locator.
func resolveParam(param Param, locator Locator) (any, error) {
	target := param.Type

	if param.Alias != "" {
		aliased, ok := locator.Lookup(param.Alias)
		if !ok {
			return nil, ErrCannotResolve(fmt.Sprintf("%q", param.Alias), fmt.Errorf("no type registered under %q", param.Alias))
		}
		target = aliased
	}

	// An `any` parameter carries no type to resolve by.
	if target == anyType {
		return nil, ErrCannotResolve(param.Name, fmt.Errorf("parameter %s has no type", param.Name))
	}

	c, isCollection, err := parseCollection(target)
	if err != nil {
		return nil, ErrCannotResolve(param.Name, err)
	}

	if isCollection {
		instances, err := locator.GetMany(c.elem)
		if err != nil {
			return nil, err
		}
		built, err := c.build(instances)
		if err != nil {
			return nil, ErrCannotResolve(param.Name, err)
		}
		return built.Interface(), nil
	}

	instance, err := locator.Get(target)
	if err != nil {
		return nil, err
	}

	if _, err := assignable(param.Type, instance); err != nil {
		return nil, ErrCannotResolve(param.Name, err)
	}

	return instance, nil
}

// LazyResolver creates the dependencies of eager Lazy fields before the
// owning instance is built. It never supplies arguments: Lazy fields are
// assigned after construction. It always returns ErrPartiallyResolved.
type LazyResolver struct{}

// Dependencies implements Resolver.
func (LazyResolver) Dependencies(f *Factory, locator Locator, _ Kwargs) (Kwargs, error) {
	for _, field := range f.LazyFields() {
		if !field.Eager {
			continue
		}
		if _, err := locator.Get(field.Key); err != nil {
			return nil, err
		}
	}

	return nil, ErrPartiallyResolved
}

// MapResolver supplies fixed arguments for the factories of given types and
// declines every other factory. It suits plugins that know how to build
// specific types without reflection.
type MapResolver map[reflect.Type]Kwargs

// Dependencies implements Resolver.
func (m MapResolver) Dependencies(f *Factory, _ Locator, _ Kwargs) (Kwargs, error) {
	args, ok := m[f.Produces()]
	if !ok {
		return nil, ErrCannotResolve(f.Name(), nil)
	}

	out := make(Kwargs, len(args))
	for name, value := range args {
		out[name] = value
	}

	return out, nil
}
