package strata

// Key provides type-safe lookup by alias.
// Use NewKey to create typed keys for your aliases.
type Key[T any] struct {
	name string
}

// NewKey creates a new typed alias key.
// The type parameter T ensures type safety when resolving.
//
// Example:
//
//	var PrimaryDB = strata.NewKey[*Database]("primary")
//	strata.RegisterKey(repo, PrimaryDB, strata.WithFactory(NewPrimaryDB))
//	db, err := strata.GetKey(repo, PrimaryDB)
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the alias of the key.
func (k Key[T]) Name() string {
	return k.name
}

// RegisterKey registers T with the key's alias.
func RegisterKey[T any](r registrar, key Key[T], opts ...RegisterOption) error {
	return r.Register(TypeOf[T](), append(opts, WithAlias(key.name))...)
}

// GetKey resolves the type registered under the key's alias.
func GetKey[T any](l Locator, key Key[T]) (T, error) {
	return GetNamed[T](l, key.name)
}

// MustKey resolves by key and panics on error.
func MustKey[T any](l Locator, key Key[T]) T {
	result, err := GetKey(l, key)
	if err != nil {
		panic(err)
	}
	return result
}

// HasKey checks if the key's alias is registered.
func HasKey[T any](l Locator, key Key[T]) bool {
	_, ok := l.Lookup(key.name)
	return ok
}
