package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	DSN string `optional:"true"`
}

type database struct {
	Settings *settings
}

type userService struct {
	DB *database
}

type greeter interface {
	Greet() string
}

type english struct {
	name string
}

func (e *english) Greet() string { return "hello " + e.name }

type french struct {
	name string
}

func (f *french) Greet() string { return "bonjour " + f.name }

func TestRegistry_GetCreatesAndCaches(t *testing.T) {
	r := NewRegistry()

	instance, err := r.Get(TypeOf[*userService]())
	require.NoError(t, err)

	svc := instance.(*userService)
	require.NotNil(t, svc.DB)
	require.NotNil(t, svc.DB.Settings)

	again, err := r.Get(TypeOf[*userService]())
	require.NoError(t, err)
	assert.Same(t, svc, again)

	db, err := r.Get(TypeOf[*database]())
	require.NoError(t, err)
	assert.Same(t, svc.DB, db)
}

func TestRegistry_GetWithBuildsUncached(t *testing.T) {
	r := NewRegistry()

	instance, err := r.GetWith(TypeOf[*settings](), Kwargs{"DSN": "postgres://a"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://a", instance.(*settings).DSN)
	assert.False(t, r.Has(TypeOf[*settings]()))

	cached, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)
	assert.NotSame(t, instance, cached)
	assert.Empty(t, cached.(*settings).DSN)
}

func TestRegistry_RegistrationKwargs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*settings](), WithKwargs(Kwargs{"DSN": "registered"})))

	instance, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)
	assert.Equal(t, "registered", instance.(*settings).DSN)
	assert.True(t, r.Has(TypeOf[*settings]()))

	// Caller kwargs win over registration kwargs.
	instance, err = r.GetWith(TypeOf[*settings](), Kwargs{"DSN": "caller"})
	require.NoError(t, err)
	assert.Equal(t, "caller", instance.(*settings).DSN)
}

func TestRegistry_Transient(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*settings](), Transient()))

	first, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)
	second, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.False(t, r.Has(TypeOf[*settings]()))
}

func TestRegistry_AddDeepAndShallow(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[greeter]()))

	en := &english{name: "en"}
	require.NoError(t, r.Add(en))

	many, err := r.GetMany(TypeOf[greeter]())
	require.NoError(t, err)
	assert.Equal(t, []any{en}, many)

	many, err = r.GetMany(anyType)
	require.NoError(t, err)
	assert.Equal(t, []any{en}, many)

	fr := &french{name: "fr"}
	require.NoError(t, r.Add(fr, Shallow()))

	many, err = r.GetMany(TypeOf[greeter]())
	require.NoError(t, err)
	assert.Equal(t, []any{en}, many)

	many, err = r.GetMany(TypeOf[*french]())
	require.NoError(t, err)
	assert.Equal(t, []any{fr}, many)
}

func TestRegistry_GetManyInOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*english](), As(new(greeter))))
	require.NoError(t, r.Register(TypeOf[*french](), As(new(greeter))))

	en := &english{name: "one"}
	fr := &french{name: "two"}
	en2 := &english{name: "three"}
	for _, g := range []any{en, fr, en2} {
		require.NoError(t, r.Add(g))
	}

	many, err := r.GetMany(TypeOf[greeter]())
	require.NoError(t, err)
	require.Len(t, many, 3)
	assert.Same(t, en, many[0])
	assert.Same(t, fr, many[1])
	assert.Same(t, en2, many[2])

	current, err := r.Get(TypeOf[greeter]())
	require.NoError(t, err)
	assert.Same(t, en2, current)
}

func TestRegistry_GetManyDoesNotCreate(t *testing.T) {
	r := NewRegistry()

	many, err := r.GetMany(TypeOf[*database]())
	require.NoError(t, err)
	assert.Empty(t, many)
	assert.False(t, r.Has(TypeOf[*database]()))

	_, err = r.GetMany("unknown")
	assert.True(t, IsCannotResolve(err))
}

func TestRegistry_ForType(t *testing.T) {
	r := NewRegistry()

	en := &english{name: "en"}
	require.NoError(t, r.Add(en, ForType(TypeOf[greeter]())))

	many, err := r.GetMany(TypeOf[greeter]())
	require.NoError(t, err)
	assert.Equal(t, []any{en}, many)

	many, err = r.GetMany(TypeOf[*english]())
	require.NoError(t, err)
	assert.Empty(t, many)

	err = r.Add(&settings{}, ForType(TypeOf[greeter]()))
	assert.ErrorIs(t, err, ErrTypeMismatchSentinel)
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name   string
		target any
		opts   []RegisterOption
		want   error
	}{
		{"neither type nor registration", nil, nil, ErrInvalidConfigurationSentinel},
		{"registration and options", Registration{Type: TypeOf[*settings]()}, []RegisterOption{Transient()}, ErrInvalidConfigurationSentinel},
		{"registration without type", Registration{}, nil, ErrInvalidConfigurationSentinel},
		{"not a type", "settings", nil, ErrTypeMismatchSentinel},
		{"as non-implemented interface", TypeOf[*settings](), []RegisterOption{As(new(greeter))}, ErrInvalidConfigurationSentinel},
		{"as concrete type", TypeOf[*english](), []RegisterOption{As(TypeOf[*french]())}, ErrInvalidConfigurationSentinel},
		{"factory is a value", TypeOf[*settings](), []RegisterOption{WithFactory(42)}, ErrInvalidConfigurationSentinel},
		{"factory without result", TypeOf[*settings](), []RegisterOption{WithFactory(func() {})}, ErrInvalidConfigurationSentinel},
		{"factory with bad second result", TypeOf[*settings](), []RegisterOption{WithFactory(func() (*settings, int) { return nil, 0 })}, ErrInvalidConfigurationSentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.target, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistry_FirstRegistrantWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*english](), As(new(greeter))))
	require.NoError(t, r.Register(TypeOf[*french](), As(new(greeter))))

	iface, ok := r.Lookup("greeter")
	require.True(t, ok)
	assert.Equal(t, TypeOf[greeter](), iface)

	reg, ok := r.Registration(TypeOf[greeter]())
	require.True(t, ok)
	assert.Equal(t, TypeOf[*english](), reg.Type)

	frType, ok := r.Lookup("french")
	require.True(t, ok)
	assert.Equal(t, TypeOf[*french](), frType)

	// A second registration of the same type changes nothing.
	require.NoError(t, r.Register(TypeOf[*english](), Transient()))
	reg, ok = r.Registration(TypeOf[*english]())
	require.True(t, ok)
	assert.False(t, reg.Transient)
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*settings](), WithKwargs(Kwargs{"DSN": "old"})))

	require.NoError(t, r.Replace(Registration{Type: TypeOf[*settings](), Kwargs: Kwargs{"DSN": "new"}}))

	instance, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)
	assert.Equal(t, "new", instance.(*settings).DSN)

	// Ancestors that shared the old registration follow the new one.
	reg, ok := r.Registration(anyType)
	require.True(t, ok)
	assert.Equal(t, "new", reg.Kwargs["DSN"])
}

func TestRegistry_RegistrationIsCopied(t *testing.T) {
	r := NewRegistry()
	kwargs := Kwargs{"DSN": "a"}
	require.NoError(t, r.Register(TypeOf[*settings](), WithKwargs(kwargs)))

	kwargs["DSN"] = "b"
	reg, ok := r.Registration(TypeOf[*settings]())
	require.True(t, ok)
	reg.Kwargs["DSN"] = "c"

	instance, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)
	assert.Equal(t, "a", instance.(*settings).DSN)
}

func TestRegistry_Aliases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*settings](), WithAlias("config")))

	byAlias, err := r.Get("config")
	require.NoError(t, err)
	byName, err := r.Get("settings")
	require.NoError(t, err)
	assert.Same(t, byAlias, byName)

	_, err = r.Get("missing")
	assert.True(t, IsCannotResolve(err))
}

func TestRegistry_CreateAlwaysBuilds(t *testing.T) {
	r := NewRegistry()

	first, err := r.Create(TypeOf[*settings]())
	require.NoError(t, err)
	second, err := r.Create(TypeOf[*settings]())
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	current, err := r.Get(TypeOf[*settings]())
	require.NoError(t, err)
	assert.Same(t, second, current)

	_, err = r.Create(nil)
	assert.ErrorIs(t, err, ErrTypeMismatchSentinel)
}

func TestRegistry_AdHocFactory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&settings{DSN: "x"}))

	calls := 0
	fn := func(s *settings) string {
		calls++
		return s.DSN
	}

	for range 2 {
		value, err := r.Get(fn)
		require.NoError(t, err)
		assert.Equal(t, "x", value)
	}

	assert.Equal(t, 2, calls)
	assert.False(t, r.Has(TypeOf[string]()))
}

func TestRegistry_Resolvers(t *testing.T) {
	r := NewRegistry()

	resolvers := r.Resolvers()
	require.Len(t, resolvers, 2)
	resolvers[0] = nil
	assert.NotNil(t, r.Resolvers()[0])

	r.AddResolver(ResolverFunc(func(*Factory, Locator, Kwargs) (Kwargs, error) {
		return nil, ErrCannotResolve("custom", nil)
	}))

	resolvers = r.Resolvers()
	require.Len(t, resolvers, 3)
	assert.IsType(t, ResolverFunc(nil), resolvers[0])
	assert.IsType(t, LazyResolver{}, resolvers[1])
	assert.IsType(t, TypeResolver{}, resolvers[2])
}

func TestRegistry_OpaqueTypeCannotResolve(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(TypeOf[int]())
	assert.True(t, IsCannotResolve(err))

	require.NoError(t, r.Add(7))
	value, err := r.Get(TypeOf[int]())
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

func TestRegistry_TypeAsFactory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[greeter](), WithFactory(TypeOf[*english]())))

	instance, err := r.Get(TypeOf[greeter]())
	require.NoError(t, err)
	assert.IsType(t, &english{}, instance)

	// The instance is cached under its own type as well.
	byType, err := r.Get(TypeOf[*english]())
	require.NoError(t, err)
	assert.Same(t, instance, byType)
}

func TestRegistry_InterfaceRegisteredAfterInstances(t *testing.T) {
	r := NewRegistry()

	en := &english{name: "before"}
	shallow := &english{name: "shallow"}
	require.NoError(t, r.Add(en))
	require.NoError(t, r.Add(shallow, Shallow()))
	require.NoError(t, r.Add(&settings{}))

	require.NoError(t, r.Register(TypeOf[greeter]()))

	fr := &french{name: "after"}
	require.NoError(t, r.Add(fr))

	many, err := r.GetMany(TypeOf[greeter]())
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Same(t, en, many[0])
	assert.Same(t, fr, many[1])

	instance, err := r.Get(TypeOf[*greeterSlice]())
	require.NoError(t, err)
	assert.Equal(t, []greeter{en, fr}, instance.(*greeterSlice).All)

	instance, err = r.Get(TypeOf[*greeterSet]())
	require.NoError(t, err)
	assert.Len(t, instance.(*greeterSet).All, 2)
}

func TestRegistry_DeclaredInterfaceAfterInstances(t *testing.T) {
	r := NewRegistry()

	fr := &french{name: "first"}
	require.NoError(t, r.Add(fr))
	require.NoError(t, r.Register(TypeOf[*english](), As(new(greeter))))

	en := &english{name: "second"}
	require.NoError(t, r.Add(en))

	many, err := r.GetMany(TypeOf[greeter]())
	require.NoError(t, err)
	assert.Equal(t, []any{fr, en}, many)
}

func TestRegistry_PointerAndValueShareName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeOf[*settings]()))
	require.NoError(t, r.Register(TypeOf[settings](), WithAlias("settingsValue")))

	byName, ok := r.Lookup("settings")
	require.True(t, ok)
	assert.Equal(t, TypeOf[*settings](), byName)

	byAlias, ok := r.Lookup("settingsValue")
	require.True(t, ok)
	assert.Equal(t, TypeOf[settings](), byAlias)

	value, err := r.GetWith("settingsValue", Kwargs{"DSN": "value"})
	require.NoError(t, err)
	assert.Equal(t, settings{DSN: "value"}, value)
}
