package strata

import (
	"fmt"
	"reflect"
)

// Lazy wraps a dependency that is resolved on first access.
// Declared as a struct field, it breaks constructor cycles: the field is not
// a constructor argument, it is bound to the repository after the instance is
// built and looks its dependency up the first time Get is called.
//
// The dependency key is T unless the field carries an `inject:"Name"` tag,
// in which case the alias is looked up. With `eager:"true"` the dependency is
// created before the owning instance, but still assigned on first access.
//
// Example:
//
//	type Parent struct {
//	    Child strata.Lazy[*Child] `inject:"Child"`
//	}
//
//	type Child struct {
//	    Parent *Parent
//	}
//
// Lazy fields are only bound on pointer instances.
type Lazy[T any] struct {
	key      any
	locator  Locator
	value    T
	resolved bool
}

// lazyBinder is implemented by *Lazy[T] for every T.
type lazyBinder interface {
	bind(locator Locator, key any)
	target() reflect.Type
}

var lazyBinderType = reflect.TypeOf((*lazyBinder)(nil)).Elem()

// NewLazy creates a lazy dependency on key, which is a reflect.Type or an
// alias. A nil key means T.
func NewLazy[T any](locator Locator, key any) *Lazy[T] {
	l := &Lazy[T]{}
	l.bind(locator, key)
	return l
}

// Get resolves the dependency and returns it.
// The resolution happens only once; subsequent calls return the cached value
// without consulting the repository. Failures are not cached.
func (l *Lazy[T]) Get() (T, error) {
	if l.resolved {
		return l.value, nil
	}

	var zero T

	if l.locator == nil {
		return zero, ErrCannotResolve(fmt.Sprintf("lazy %v", l.describe()), fmt.Errorf("not bound to a repository"))
	}

	instance, err := l.locator.Get(l.key)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, ErrTypeMismatch(l.target().String(), instance)
	}

	l.value = typed
	l.resolved = true

	return l.value, nil
}

// MustGet resolves the dependency and returns it, panicking on error.
func (l *Lazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %v failed: %v", l.describe(), err))
	}

	return value
}

// IsResolved returns true if the dependency has been resolved.
func (l *Lazy[T]) IsResolved() bool {
	return l.resolved
}

// IsBound returns true once the field has a repository to resolve from.
func (l *Lazy[T]) IsBound() bool {
	return l.locator != nil
}

// Key returns the dependency key, a reflect.Type or an alias.
func (l *Lazy[T]) Key() any {
	if l.key == nil {
		return l.target()
	}
	return l.key
}

func (l *Lazy[T]) bind(locator Locator, key any) {
	if l.locator != nil {
		return
	}
	if key == nil {
		key = l.target()
	}
	l.locator = locator
	l.key = key
}

func (l *Lazy[T]) target() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (l *Lazy[T]) describe() any {
	if name, ok := l.Key().(string); ok {
		return name
	}
	return typeName(l.target())
}

// lazyTarget reports whether t is a Lazy[T] and returns T.
func lazyTarget(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Struct || !reflect.PointerTo(t).Implements(lazyBinderType) {
		return nil, false
	}
	return reflect.New(t).Interface().(lazyBinder).target(), true
}

// bindLazy binds the unbound Lazy fields of a pointer-to-struct instance.
func bindLazy(instance any, locator Locator) {
	rv := reflect.ValueOf(instance)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return
	}

	_, fields := collectFields(rv.Elem().Type(), nil)
	for _, field := range fields {
		fv := rv.Elem().FieldByIndex(field.index)
		fv.Addr().Interface().(lazyBinder).bind(locator, field.Key)
	}
}
