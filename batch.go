package strata

import "go.uber.org/multierr"

// SetupConfig holds the objects, types and resolvers installed by Setup.
type SetupConfig struct {
	// Objects are added as instances, deep.
	Objects []any
	// Types are reflect.Type values or complete registrations.
	Types []any
	// Resolvers are installed in order, each ahead of the previous ones.
	Resolvers []Resolver
}

// Setup configures the topmost layer in a single call. Every object and type
// is attempted; the failures are returned together.
//
// Example:
//
//	err := repo.Setup(strata.SetupConfig{
//	    Objects: []any{cfg, logger},
//	    Types: []any{
//	        strata.TypeOf[*UserService](),
//	        strata.Registration{Type: strata.TypeOf[Store](), Factory: NewStore},
//	    },
//	})
func (r *Repository) Setup(cfg SetupConfig) error {
	var err error

	for _, obj := range cfg.Objects {
		err = multierr.Append(err, r.Add(obj))
	}

	for _, typ := range cfg.Types {
		err = multierr.Append(err, r.Register(typ))
	}

	for _, resolver := range cfg.Resolvers {
		r.AddResolver(resolver)
	}

	return err
}
