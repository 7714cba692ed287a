package apperrors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"validation", Validation("bad email"), KindValidation, http.StatusBadRequest},
		{"conflict", Conflict("cannot delete base role"), KindConflict, http.StatusConflict},
		{"not found", NotFound("role", 42), KindNotFound, http.StatusNotFound},
		{"forbidden", Forbidden("missing rbac:manage"), KindAuthorization, http.StatusForbidden},
		{"dependency", Dependency("failed to list roles", sql.ErrConnDone), KindDependency, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestWrappedKindSurvives(t *testing.T) {
	err := fmt.Errorf("create invitation: %w", Conflict("an active invitation already exists for this email"))
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "active invitation already exists")
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "role not found: 7", NotFound("role", 7).Error())
}

func TestDependencyUnwraps(t *testing.T) {
	err := Dependency("failed to get role", sql.ErrConnDone)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, "failed to get role: sql: connection is already closed", err.Error())
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(Validation("x")))
}

func TestFromStorage(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, FromStorage("op", nil))
	})

	t.Run("unique violation", func(t *testing.T) {
		err := FromStorage("failed to create role", &pq.Error{Code: "23505"})
		assert.True(t, IsConflict(err))
	})

	t.Run("other driver error", func(t *testing.T) {
		err := FromStorage("failed to create role", &pq.Error{Code: "08006"})
		assert.True(t, IsDependency(err))
	})

	t.Run("already classified", func(t *testing.T) {
		orig := NotFound("role", 1)
		assert.Same(t, orig, FromStorage("op", orig))
	})
}
