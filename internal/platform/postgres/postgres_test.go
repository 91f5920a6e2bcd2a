package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"punchclock/pkg/platform/sentinel"
)

func TestTranslateError(t *testing.T) {
	t.Run("unique violation becomes conflict", func(t *testing.T) {
		err := fmt.Errorf("insert punch: %w", &pq.Error{Code: "23505", Constraint: "punches_one_per_type"})
		got := TranslateError(err)
		assert.ErrorIs(t, got, sentinel.ErrConflict)
		assert.Contains(t, got.Error(), "punches_one_per_type")
	})

	t.Run("other driver errors pass through", func(t *testing.T) {
		orig := &pq.Error{Code: "23503"}
		assert.Same(t, orig, TranslateError(orig))
	})

	t.Run("non-driver errors pass through", func(t *testing.T) {
		orig := errors.New("connection refused")
		assert.Equal(t, orig, TranslateError(orig))
		assert.NoError(t, TranslateError(nil))
	})
}

func TestMigrationsEmbedded(t *testing.T) {
	body, err := migrations.ReadFile("migrations/0001_schema.sql")
	assert.NoError(t, err)
	assert.Contains(t, string(body), "punches_one_per_type")
}
