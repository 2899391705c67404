package service

import (
	"fmt"
	"testing"

	"github.com/crackzone/teams/internal/db"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_KeepsCauseForRetry(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "serialization failure behind a service error",
			err:      fmt.Errorf("transaction function failed: %w", wrapError(ErrorCodeUnspecified, "failed to add member", &pgconn.PgError{Code: "40001"})),
			expected: true,
		},
		{
			name:     "deadlock behind a service error",
			err:      fmt.Errorf("transaction function failed: %w", wrapError(ErrorCodeUnspecified, "failed to lock team", &pgconn.PgError{Code: "40P01"})),
			expected: true,
		},
		{
			name:     "unique violation behind a service error",
			err:      fmt.Errorf("transaction function failed: %w", wrapError(ErrorCodeUnspecified, "failed to add member", &pgconn.PgError{Code: "23505"})),
			expected: false,
		},
		{
			name:     "domain error without a cause",
			err:      fmt.Errorf("transaction function failed: %w", NewError(ErrorCodeTeamFull, "team is full")),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, db.IsRetryable(tt.err))
		})
	}
}

func TestAsError_UnwrapsTransactionError(t *testing.T) {
	full := NewError(ErrorCodeTeamFull, "team is full")
	assert.Same(t, full, asError(fmt.Errorf("transaction function failed: %w", full)))

	got := asError(errors.New("connection reset"))
	assertErrorCode(t, got, ErrorCodeUnspecified)
}
