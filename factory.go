package strata

import (
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

// In is a marker type embedded in parameter structs. A func factory taking
// such a struct has each exported field of it resolved as a named dependency,
// even though the func itself declares a single parameter.
//
// Example:
//
//	type ServiceParams struct {
//	    strata.In
//
//	    DB     *Database
//	    Logger *Logger    `optional:"true"`
//	    Cache  Cache      `inject:"RedisCache"`
//	    Rules  []Rule
//	}
//
//	func NewService(p ServiceParams) *Service { ... }
type In struct{}

var (
	inType    = reflect.TypeOf(In{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	anyType   = reflect.TypeOf((*any)(nil)).Elem()
)

// Struct tags understood on struct fields and In fields.
const (
	tagInject   = "inject"   // alias of the dependency, or "-" to skip the field
	tagName     = "name"     // argument name, defaults to the field name
	tagOptional = "optional" // "true": the field has a default and is never required
	tagEager    = "eager"    // "true" on a Lazy field: resolve before construction
)

type factoryKind int

const (
	// opaqueFactory has no constructor: scalars, interfaces, maps, slices, channels.
	opaqueFactory factoryKind = iota
	// structFactory builds a struct (or pointer to struct) by field injection.
	structFactory
	// funcFactory calls a function with its resolved parameters.
	funcFactory
)

// Param describes one named argument of a factory.
type Param struct {
	// Name is the argument name used in Kwargs.
	Name string
	// Type is the declared type of the argument.
	Type reflect.Type
	// Alias, when set, names the registered type to resolve instead of Type.
	Alias string
	// Optional arguments keep their zero value when not supplied.
	Optional bool
	// Variadic marks the trailing variadic parameter of a func factory.
	Variadic bool

	arg   int   // position in a func's parameter list
	index []int // field index path inside the struct being built
}

// LazyField describes a Lazy[T] field of the type a factory produces.
type LazyField struct {
	Name  string
	Key   any // reflect.Type or alias string
	Eager bool

	index []int
}

// FuncFactory is a func factory with explicit parameter names.
type FuncFactory struct {
	fn    any
	names []string
}

// Named binds names to the parameters of fn, in order. Parameters without a
// name are called argN.
//
// Example:
//
//	repo.Register(strata.TypeOf[*Server](), strata.WithFactory(
//	    strata.Named(NewServer, "config", "logger"),
//	))
//	repo.GetWith(strata.TypeOf[*Server](), strata.Kwargs{"config": cfg})
func Named(fn any, names ...string) *FuncFactory {
	return &FuncFactory{fn: fn, names: names}
}

// Factory is the analyzed form of a constructor: a struct type or a func.
// Resolvers inspect it to decide which arguments to supply.
type Factory struct {
	name     string
	kind     factoryKind
	produces reflect.Type
	params   []Param
	lazy     []LazyField

	// struct factories
	structType reflect.Type
	ptr        bool

	// func factories
	fn       reflect.Value
	fnType   reflect.Type
	hasError bool
	inArgs   map[int]reflect.Type
}

// Name returns a human readable name of the factory.
func (f *Factory) Name() string { return f.name }

// Produces returns the type of the values the factory builds.
func (f *Factory) Produces() reflect.Type { return f.produces }

// Params returns the arguments the factory accepts.
func (f *Factory) Params() []Param { return f.params }

// LazyFields returns the Lazy[T] fields of the produced type.
func (f *Factory) LazyFields() []LazyField { return f.lazy }

// Constructible reports whether the factory can build values at all.
func (f *Factory) Constructible() bool { return f.kind != opaqueFactory }

// IsFunc reports whether the factory is a function rather than a type.
func (f *Factory) IsFunc() bool { return f.kind == funcFactory }

// analyzeFactory inspects the factory configured for target.
func analyzeFactory(target reflect.Type, factory any) (*Factory, error) {
	switch v := factory.(type) {
	case nil:
		return newTypeFactory(target), nil
	case reflect.Type:
		if v == nil {
			return newTypeFactory(target), nil
		}
		return newTypeFactory(v), nil
	case *FuncFactory:
		return newFuncFactory(v.fn, v.names)
	default:
		if reflect.TypeOf(factory).Kind() != reflect.Func {
			return nil, ErrInvalidConfiguration(fmt.Sprintf("factory for %s must be a type or a function, got %T", typeName(target), factory))
		}
		return newFuncFactory(factory, nil)
	}
}

// newTypeFactory builds the default factory of a type: its fields for
// structs, nothing for the rest.
func newTypeFactory(t reflect.Type) *Factory {
	f := &Factory{
		name:     typeName(t),
		produces: t,
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
		f.ptr = true
	}
	if st.Kind() != reflect.Struct {
		f.kind = opaqueFactory
		return f
	}

	f.kind = structFactory
	f.structType = st
	f.params, f.lazy = collectFields(st, nil)

	return f
}

// newFuncFactory analyzes a func returning (T) or (T, error).
func newFuncFactory(fn any, names []string) (*Factory, error) {
	fnValue := reflect.ValueOf(fn)
	if !fnValue.IsValid() || fnValue.Kind() != reflect.Func || fnValue.IsNil() {
		return nil, ErrInvalidConfiguration(fmt.Sprintf("factory must be a function, got %T", fn))
	}
	fnType := fnValue.Type()

	f := &Factory{
		name:   funcName(fnValue),
		kind:   funcFactory,
		fn:     fnValue,
		fnType: fnType,
		inArgs: make(map[int]reflect.Type),
	}

	switch fnType.NumOut() {
	case 1:
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, ErrInvalidConfiguration(fmt.Sprintf("factory %s: second result must be an error", f.name))
		}
		f.hasError = true
	default:
		return nil, ErrInvalidConfiguration(fmt.Sprintf("factory %s must return (T) or (T, error), got %d results", f.name, fnType.NumOut()))
	}
	if fnType.Out(0) == errorType {
		return nil, ErrInvalidConfiguration(fmt.Sprintf("factory %s must return a value before its error", f.name))
	}
	f.produces = fnType.Out(0)

	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)

		if isInStruct(paramType) {
			st := paramType
			if st.Kind() == reflect.Pointer {
				st = st.Elem()
			}
			fields, _ := collectFields(st, nil)
			for _, field := range fields {
				field.arg = i
				f.params = append(f.params, field)
			}
			f.inArgs[i] = paramType
			continue
		}

		name := "arg" + strconv.Itoa(i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		f.params = append(f.params, Param{
			Name:     name,
			Type:     paramType,
			Variadic: fnType.IsVariadic() && i == fnType.NumIn()-1,
			arg:      i,
		})
	}

	if st := f.produces; st.Kind() == reflect.Pointer && st.Elem().Kind() == reflect.Struct {
		_, f.lazy = collectFields(st.Elem(), nil)
	}

	return f, nil
}

// collectFields walks the exported fields of st. Embedded value structs are
// flattened so their fields become arguments of the outer struct.
func collectFields(st reflect.Type, prefix []int) ([]Param, []LazyField) {
	var (
		params []Param
		lazy   []LazyField
	)

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type == inType {
			continue
		}

		inject := field.Tag.Get(tagInject)
		target, isLazy := lazyTarget(field.Type)

		// Promoted fields of embedded structs are settable even when the
		// embedded type itself is unexported.
		if field.Anonymous && field.Type.Kind() == reflect.Struct && !isLazy && inject != "-" {
			p, l := collectFields(field.Type, index)
			params = append(params, p...)
			lazy = append(lazy, l...)
			continue
		}

		if !field.IsExported() {
			continue
		}

		if isLazy {
			var key any = target
			if inject != "" && inject != "-" {
				key = inject
			}
			lazy = append(lazy, LazyField{
				Name:  field.Name,
				Key:   key,
				Eager: strings.EqualFold(field.Tag.Get(tagEager), "true"),
				index: index,
			})
			continue
		}

		if inject == "-" {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get(tagName); tag != "" {
			name = tag
		}

		params = append(params, Param{
			Name:     name,
			Type:     field.Type,
			Alias:    inject,
			Optional: strings.EqualFold(field.Tag.Get(tagOptional), "true"),
			index:    index,
		})
	}

	return params, lazy
}

// isInStruct checks if a type embeds strata.In
func isInStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
	}
	return false
}

// invoke builds a value from args. Every argument name must match a param.
func (f *Factory) invoke(args Kwargs) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = NewFactoryError(f.name, fmt.Errorf("panic: %v", rec))
		}
	}()

	known := make(map[string]Param, len(f.params))
	for _, p := range f.params {
		known[p.Name] = p
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			return nil, ErrInvalidConfiguration(fmt.Sprintf("unexpected argument %q for %s", name, f.name))
		}
	}

	switch f.kind {
	case structFactory:
		return f.invokeStruct(args)
	case funcFactory:
		return f.invokeFunc(args)
	default:
		return nil, ErrCannotResolve(f.name, fmt.Errorf("%s has no constructor", f.name))
	}
}

func (f *Factory) invokeStruct(args Kwargs) (any, error) {
	ptr := reflect.New(f.structType)
	if err := fill(ptr.Elem(), f.params, args, f.name); err != nil {
		return nil, err
	}
	if f.ptr {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}

func (f *Factory) invokeFunc(args Kwargs) (any, error) {
	in := make([]reflect.Value, f.fnType.NumIn())

	for i, argType := range f.inArgs {
		st := argType
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		ptr := reflect.New(st)
		var fields []Param
		for _, p := range f.params {
			if p.arg == i {
				fields = append(fields, p)
			}
		}
		if err := fill(ptr.Elem(), fields, args, f.name); err != nil {
			return nil, err
		}
		if argType.Kind() == reflect.Pointer {
			in[i] = ptr
		} else {
			in[i] = ptr.Elem()
		}
	}

	for _, p := range f.params {
		if _, ok := f.inArgs[p.arg]; ok {
			continue
		}
		value, ok := args[p.Name]
		if !ok && !p.Variadic && !p.Optional {
			return nil, ErrInvalidConfiguration(fmt.Sprintf("missing argument %q for %s", p.Name, f.name))
		}
		v, err := assignable(p.Type, value)
		if err != nil {
			return nil, ErrCannotResolve(p.Name, err)
		}
		in[p.arg] = v
	}

	var out []reflect.Value
	if f.fnType.IsVariadic() {
		out = f.fn.CallSlice(in)
	} else {
		out = f.fn.Call(in)
	}

	if f.hasError && !out[1].IsNil() {
		return nil, NewFactoryError(f.name, out[1].Interface().(error))
	}

	return out[0].Interface(), nil
}

// fill sets the fields described by params on the addressable struct v.
func fill(v reflect.Value, params []Param, args Kwargs, owner string) error {
	for _, p := range params {
		value, ok := args[p.Name]
		if !ok {
			continue
		}
		field := v.FieldByIndex(p.index)
		converted, err := assignable(field.Type(), value)
		if err != nil {
			return ErrCannotResolve(fmt.Sprintf("%s.%s", owner, p.Name), err)
		}
		field.Set(converted)
	}
	return nil
}

// assignable converts value into a reflect.Value settable on a t. Numeric,
// string and bool values convert within their own kind family.
func assignable(t reflect.Type, value any) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if sameFamily(rv.Kind(), t.Kind()) && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}

	if rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice {
		out := reflect.MakeSlice(t, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := assignable(t.Elem(), rv.Index(i).Interface())
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, elem)
		}
		return out, nil
	}

	return reflect.Value{}, ErrTypeMismatch(t.String(), value)
}

func sameFamily(a, b reflect.Kind) bool {
	return kindFamily(a) != 0 && kindFamily(a) == kindFamily(b)
}

func kindFamily(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	default:
		return 0
	}
}

// funcName returns the package-qualified name of a function, without the
// import path.
func funcName(fn reflect.Value) string {
	if !fn.IsValid() {
		return "<nil>"
	}
	rf := runtime.FuncForPC(fn.Pointer())
	if rf == nil {
		return fn.Type().String()
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
