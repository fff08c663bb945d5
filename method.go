package instrumentz

import (
	"context"
	"reflect"
)

// MethodSpec describes the span recorded around a wrapped method.
type MethodSpec struct {
	Category Category
	Title    string
}

// InstanceMethod describes method name on recv's type, titled "Type#name".
func InstanceMethod(recv any, name string) MethodSpec {
	return MethodSpec{Category: CategoryMethod, Title: typeName(recv) + "#" + name}
}

// TypeMethod describes a type-level function name on recv's type, titled
// "Type.name".
func TypeMethod(recv any, name string) MethodSpec {
	return MethodSpec{Category: CategoryMethod, Title: typeName(recv) + "." + name}
}

// WithCategory returns a copy of s with category overridden.
func (s MethodSpec) WithCategory(category Category) MethodSpec {
	s.Category = category
	return s
}

// WithTitle returns a copy of s with title overridden.
func (s MethodSpec) WithTitle(title string) MethodSpec {
	s.Title = title
	return s
}

// WrapMethod returns fn wrapped in a span described by spec.
func WrapMethod(t Tracer, spec MethodSpec, fn func(context.Context) error) func(context.Context) error {
	spec = spec.withDefaults()
	return func(ctx context.Context) error {
		return t.Instrument(ctx, spec.Category, spec.Title, func(ctx context.Context, _ *SpanScope) error {
			return fn(ctx)
		})
	}
}

// WrapMethodValue is WrapMethod for functions returning a value.
func WrapMethodValue[T any](t Tracer, spec MethodSpec, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	spec = spec.withDefaults()
	return func(ctx context.Context) (T, error) {
		return InstrumentValue(ctx, t, spec.Category, spec.Title, func(ctx context.Context, _ *SpanScope) (T, error) {
			return fn(ctx)
		})
	}
}

func (s MethodSpec) withDefaults() MethodSpec {
	if s.Category == "" {
		s.Category = CategoryMethod
	}
	return s
}

// typeName returns the bare name of v's type, dereferencing pointers.
func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}
