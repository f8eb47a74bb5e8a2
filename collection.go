package strata

import (
	"fmt"
	"reflect"
)

type collectionKind int

const (
	// sliceCollection is []T, filled in order.
	sliceCollection collectionKind = iota + 1
	// seqCollection is iter.Seq[T], an abstract iterable backed by an ordered slice.
	seqCollection
	// setCollection is map[T]struct{} or map[T]bool.
	setCollection
)

// collection describes a parameter type that asks for every cached instance
// of an element type.
type collection struct {
	kind      collectionKind
	container reflect.Type
	elem      reflect.Type
}

// parseCollection classifies t. It returns ok=false for plain types, and an
// error for collection shapes that cannot be filled: arrays (fixed arity),
// maps that are not sets, channels and nested collections.
func parseCollection(t reflect.Type) (c collection, ok bool, err error) {
	switch t.Kind() {
	case reflect.Slice:
		c = collection{kind: sliceCollection, container: t, elem: t.Elem()}
	case reflect.Map:
		if !isSetValue(t.Elem()) {
			return c, false, fmt.Errorf("mapping %s is not a collection", t)
		}
		c = collection{kind: setCollection, container: t, elem: t.Key()}
	case reflect.Func:
		elem, isSeq := seqElem(t)
		if !isSeq {
			return c, false, nil
		}
		c = collection{kind: seqCollection, container: t, elem: elem}
	case reflect.Array:
		return c, false, fmt.Errorf("fixed-length %s is not a collection", t)
	case reflect.Chan:
		return c, false, fmt.Errorf("channel %s is not a collection", t)
	default:
		return c, false, nil
	}

	if isCollectionShape(c.elem) {
		return c, false, fmt.Errorf("nested collection %s is not supported", t)
	}

	return c, true, nil
}

// isSetValue reports whether a map value type marks the map as a set.
func isSetValue(t reflect.Type) bool {
	return t.Kind() == reflect.Bool || (t.Kind() == reflect.Struct && t.NumField() == 0)
}

// seqElem returns V when t has the shape of iter.Seq[V]: func(yield func(V) bool).
func seqElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 || t.IsVariadic() {
		return nil, false
	}
	yield := t.In(0)
	if yield.Kind() != reflect.Func || yield.NumIn() != 1 || yield.NumOut() != 1 || yield.Out(0).Kind() != reflect.Bool {
		return nil, false
	}
	return yield.In(0), true
}

func isCollectionShape(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return true
	case reflect.Func:
		_, ok := seqElem(t)
		return ok
	default:
		return false
	}
}

// build wraps values into the container type.
func (c collection) build(values []any) (reflect.Value, error) {
	elems := make([]reflect.Value, 0, len(values))
	for _, v := range values {
		ev, err := assignable(c.elem, v)
		if err != nil {
			return reflect.Value{}, err
		}
		elems = append(elems, ev)
	}

	switch c.kind {
	case setCollection:
		set := reflect.MakeMapWithSize(c.container, len(elems))
		member := reflect.Zero(c.container.Elem())
		if c.container.Elem().Kind() == reflect.Bool {
			member = reflect.ValueOf(true).Convert(c.container.Elem())
		}
		for _, ev := range elems {
			if !ev.Comparable() {
				return reflect.Value{}, fmt.Errorf("%s value %v cannot be a set member", c.elem, ev.Interface())
			}
			set.SetMapIndex(ev, member)
		}
		return set, nil

	case seqCollection:
		seq := reflect.MakeFunc(c.container, func(args []reflect.Value) []reflect.Value {
			yield := args[0]
			for _, ev := range elems {
				if !yield.Call([]reflect.Value{ev})[0].Bool() {
					break
				}
			}
			return nil
		})
		return seq, nil

	default:
		slice := reflect.MakeSlice(c.container, 0, len(elems))
		return reflect.Append(slice, elems...), nil
	}
}
