package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "punchclock/pkg/domain-errors"
)

func TestTemplateValidate(t *testing.T) {
	t.Run("exact length passes", func(t *testing.T) {
		assert.NoError(t, make(Template, TemplateSize).Validate())
	})

	for _, n := range []int{0, 1, 127, 129, 256} {
		err := make(Template, n).Validate()
		assert.Error(t, err, "length %d", n)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "expected exactly 128 values")
	}

	t.Run("non-finite component rejected", func(t *testing.T) {
		tpl := make(Template, TemplateSize)
		tpl[5] = math.NaN()
		err := tpl.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "index 5")
	})
}
