package container

import (
	"errors"
	"fmt"
	"reflect"
)

// Kind says how a registration produces its instance.
type Kind int

const (
	// KindValue is an already-built value used as is.
	KindValue Kind = iota
	// KindFactory is a FactoryFunc called with the resolved dependencies.
	KindFactory
	// KindConstructor is an arbitrary Go func whose parameters receive the
	// resolved dependencies positionally.
	KindConstructor
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFactory:
		return "factory"
	case KindConstructor:
		return "constructor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FactoryFunc builds an instance from its dependencies, in declared order.
// A dependency that is not registered arrives as nil.
type FactoryFunc func(deps ...any) (any, error)

// Implementation is what Register stores for a service. Build one with
// Value, Factory or Constructor.
type Implementation struct {
	kind    Kind
	value   any
	factory FactoryFunc
	ctor    reflect.Value
}

// Kind returns how the implementation produces its instance.
func (i Implementation) Kind() Kind { return i.kind }

// Value wraps an already-built instance.
//
//	c.Register("config", container.Value(cfg), container.AutoRegister())
func Value(v any) Implementation {
	return Implementation{kind: KindValue, value: v}
}

// Factory wraps a plain factory function.
//
//	c.Register("cache", container.Factory(func(deps ...any) (any, error) {
//	    return newCache(deps[0].(*config.Config)), nil
//	}), container.DependsOn("config"))
func Factory(fn FactoryFunc) Implementation {
	return Implementation{kind: KindFactory, factory: fn}
}

// Constructor wraps a typed constructor. fn must be a func returning either
// T or (T, error); its parameters receive the dependencies positionally.
//
//	func NewWidgetFactory(bus *events.Bus) *WidgetFactory { ... }
//
//	c.Register("widgetFactory", container.Constructor(NewWidgetFactory),
//	    container.DependsOn("eventManager"))
func Constructor(fn any) Implementation {
	return Implementation{kind: KindConstructor, ctor: reflect.ValueOf(fn)}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// validate checks the implementation against the number of declared
// dependencies.
func (i Implementation) validate(deps int) string {
	switch i.kind {
	case KindValue:
		return ""
	case KindFactory:
		if i.factory == nil {
			return "nil factory"
		}
		return ""
	case KindConstructor:
		if !i.ctor.IsValid() || i.ctor.Kind() != reflect.Func || i.ctor.IsNil() {
			return "constructor must be a non-nil func"
		}
		t := i.ctor.Type()
		switch {
		case t.IsVariadic() && deps < t.NumIn()-1:
			return fmt.Sprintf("constructor needs at least %d dependencies, %d declared", t.NumIn()-1, deps)
		case !t.IsVariadic() && deps != t.NumIn():
			return fmt.Sprintf("constructor takes %d parameters, %d dependencies declared", t.NumIn(), deps)
		}
		switch t.NumOut() {
		case 1:
		case 2:
			if !t.Out(1).Implements(errorType) {
				return "constructor second result must be error"
			}
		default:
			return "constructor must return T or (T, error)"
		}
		return ""
	default:
		return "unknown implementation kind"
	}
}

// build produces an instance from the resolved dependencies.
func (i Implementation) build(deps []any) (any, error) {
	switch i.kind {
	case KindValue:
		return i.value, nil
	case KindFactory:
		return i.factory(deps...)
	case KindConstructor:
		return i.construct(deps)
	default:
		return nil, errors.New("unknown implementation kind")
	}
}

func (i Implementation) construct(deps []any) (any, error) {
	t := i.ctor.Type()
	args := make([]reflect.Value, len(deps))
	for n, dep := range deps {
		var param reflect.Type
		if t.IsVariadic() && n >= t.NumIn()-1 {
			param = t.In(t.NumIn() - 1).Elem()
		} else {
			param = t.In(n)
		}

		if dep == nil {
			args[n] = reflect.Zero(param)
			continue
		}
		v := reflect.ValueOf(dep)
		if !v.Type().AssignableTo(param) {
			return nil, fmt.Errorf("dependency %d: %s is not assignable to %s", n, v.Type(), param)
		}
		args[n] = v
	}

	out := i.ctor.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
