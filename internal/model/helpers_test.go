package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/model"
)

// requireViolation asserts that fn panics with a contract violation.
func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		fn()
	}()
	require.NotNil(t, recovered, "expected a panic")
	require.True(t, model.IsContractViolation(recovered), "unexpected panic: %v", recovered)
}
