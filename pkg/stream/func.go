package stream

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Func is a function over the facts carried by a tuple: a predicate, a mapping, a group key or a
// match weigher. Nodes are shared between constraints only if they use the same *Func, so a Func
// should be created once and reused.
type Func struct {
	name string
	in   []reflect.Type
	out  reflect.Type
	fn   func(facts []any) any
}

// NewFunc creates an untyped function. The declared input types are used for the build-time
// assignability checks; a nil in disables them.
func NewFunc(name string, in []reflect.Type, out reflect.Type, fn func(facts []any) any) *Func {
	if fn == nil {
		return nil
	}
	return &Func{name: name, in: in, out: out, fn: fn}
}

// F1 adapts a function of one fact.
func F1[A, R any](fn func(A) R) *Func {
	if fn == nil {
		return nil
	}
	return &Func{
		name: funcName(fn),
		in:   []reflect.Type{reflect.TypeFor[A]()},
		out:  reflect.TypeFor[R](),
		fn:   func(f []any) any { return fn(arg[A](f[0])) },
	}
}

// F2 adapts a function of two facts.
func F2[A, B, R any](fn func(A, B) R) *Func {
	if fn == nil {
		return nil
	}
	return &Func{
		name: funcName(fn),
		in:   []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()},
		out:  reflect.TypeFor[R](),
		fn:   func(f []any) any { return fn(arg[A](f[0]), arg[B](f[1])) },
	}
}

// F3 adapts a function of three facts.
func F3[A, B, C, R any](fn func(A, B, C) R) *Func {
	if fn == nil {
		return nil
	}
	return &Func{
		name: funcName(fn),
		in:   []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]()},
		out:  reflect.TypeFor[R](),
		fn:   func(f []any) any { return fn(arg[A](f[0]), arg[B](f[1]), arg[C](f[2])) },
	}
}

// F4 adapts a function of four facts.
func F4[A, B, C, D, R any](fn func(A, B, C, D) R) *Func {
	if fn == nil {
		return nil
	}
	return &Func{
		name: funcName(fn),
		in: []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C](),
			reflect.TypeFor[D]()},
		out: reflect.TypeFor[R](),
		fn: func(f []any) any {
			return fn(arg[A](f[0]), arg[B](f[1]), arg[C](f[2]), arg[D](f[3]))
		},
	}
}

// arg converts a fact to the declared parameter type. A nil fact or a fact of a narrower
// interface type that does not hold an A yields the zero value.
func arg[A any](v any) A {
	a, _ := v.(A)
	return a
}

// Named overrides the name shown in logs and graph renderings.
func (f *Func) Named(name string) *Func {
	f.name = name
	return f
}

// Call applies the function to the facts of a tuple.
func (f *Func) Call(facts []any) any { return f.fn(facts) }

// Test applies a predicate. A non-bool result counts as false.
func (f *Func) Test(facts []any) bool {
	b, _ := f.fn(facts).(bool)
	return b
}

// Arity returns the number of declared inputs, or -1 for an untyped function.
func (f *Func) Arity() int {
	if f.in == nil {
		return -1
	}
	return len(f.in)
}

// In returns the declared input types.
func (f *Func) In() []reflect.Type { return f.in }

// Out returns the declared result type, nil if unknown.
func (f *Func) Out() reflect.Type { return f.out }

// Name returns the name of the function.
func (f *Func) Name() string { return f.name }

// String implements fmt.Stringer.
func (f *Func) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%d", f.name, f.Arity())
}

func funcName(fn any) string {
	rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if rf == nil {
		return "func"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
