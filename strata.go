// Package strata is a dependency injection container that builds values by
// recursively resolving their dependencies from registered types, factories
// and previously created instances.
//
// A Repository is a stack of Registry layers. The base layer lives for the
// whole process; nested scopes push layers whose registrations and instances
// shadow the outer ones until popped.
//
// Dependencies are discovered from types: the exported fields of a struct,
// or the parameters of a factory function. Every resolved instance is cached
// (a singleton per layer) unless its registration is transient or explicit
// arguments were given.
//
//	repo := strata.New()
//	_ = repo.Add(&Config{DSN: "postgres://localhost/app"})
//	svc, err := strata.Get[*UserService](repo)
//
// Cycles between constructors are reported as CircularDependency errors and
// can be broken with Lazy fields, which resolve on first access.
package strata
