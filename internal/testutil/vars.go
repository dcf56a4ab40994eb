package testutil

import (
	"testing"

	"github.com/hupe1980/groupchat/core"
)

// Vars builds context variables for schema and applies values, failing the
// test on any undeclared key or kind mismatch.
func Vars(t testing.TB, schema *core.Schema, values map[string]any) *core.ContextVariables {
	t.Helper()
	cv := core.NewContextVariables(schema)
	if err := cv.Apply(values); err != nil {
		t.Fatalf("apply context values: %v", err)
	}
	return cv
}
