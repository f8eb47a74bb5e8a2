package strata

import (
	"fmt"
	"reflect"
)

// TypeOf returns the reflect.Type of T, interfaces included.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Get resolves the current instance of T with type safety.
func Get[T any](l Locator) (T, error) {
	return cast[T](l.Get(TypeOf[T]()))
}

// GetNamed resolves the type registered under alias, typed as T.
func GetNamed[T any](l Locator, alias string) (T, error) {
	return cast[T](l.Get(alias))
}

// GetWith builds a new, uncached T with explicit arguments.
func GetWith[T any](l Locator, kwargs Kwargs) (T, error) {
	return cast[T](l.GetWith(TypeOf[T](), kwargs))
}

// GetMany returns every cached instance of T.
func GetMany[T any](l Locator) ([]T, error) {
	instances, err := l.GetMany(TypeOf[T]())
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(instances))
	for _, instance := range instances {
		typed, ok := instance.(T)
		if !ok {
			return nil, ErrTypeMismatch(TypeOf[T]().String(), instance)
		}
		result = append(result, typed)
	}

	return result, nil
}

// Call resolves the parameters of fn and calls it. The result is never cached.
//
// Example:
//
//	srv, err := strata.Call[*http.Server](repo, func(h http.Handler, cfg *Config) *http.Server {
//	    return &http.Server{Addr: cfg.Addr, Handler: h}
//	})
func Call[T any](l Locator, fn any) (T, error) {
	return cast[T](l.Get(fn))
}

// Must resolves or panics - use only during startup.
func Must[T any](l Locator) T {
	instance, err := Get[T](l)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", typeName(TypeOf[T]()), err))
	}

	return instance
}

// registrar is implemented by Registry and Repository.
type registrar interface {
	Register(target any, opts ...RegisterOption) error
}

// Register registers T. See Registry.Register.
func Register[T any](r registrar, opts ...RegisterOption) error {
	return r.Register(TypeOf[T](), opts...)
}

func cast[T any](instance any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}

	if instance == nil {
		return zero, nil
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, ErrTypeMismatch(TypeOf[T]().String(), instance)
	}

	return typed, nil
}

// typeNameOf returns the short type name of a value.
func typeNameOf(v any) string {
	return typeName(reflect.TypeOf(v))
}
