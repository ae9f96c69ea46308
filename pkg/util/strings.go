package util

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"
)

// functional map: (a -> b) -> [a] -> [b]
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Stringify renders a fact for logging: a fmt.Stringer as its string, anything else as JSON,
// falling back to Go syntax.
func Stringify(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// StringifyAll renders a list of facts as a bracketed, comma-separated list.
func StringifyAll(vs []any) string {
	return "[" + strings.Join(Map(Stringify, vs), ", ") + "]"
}
