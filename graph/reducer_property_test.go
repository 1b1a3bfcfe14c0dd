package graph

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestListAppendReducerAssociative verifies the associativity law a
// Reducer must satisfy so parallel branches can be merged in any order:
// reduce(reduce(a,b),c) == reduce(a, reduce(b,c)).
func TestListAppendReducerAssociative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ListAppendReducer is associative", prop.ForAll(
		func(a, b, c []string) bool {
			left := ListAppendReducer(ListAppendReducer(a, b), c)
			right := ListAppendReducer(a, ListAppendReducer(b, c))
			return stringSlicesEqual(left.([]string), right.([]string))
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
