package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
)

func TestClassification(t *testing.T) {
	base := errors.New("dial tcp: refused")

	t.Run("wrapped connection error", func(t *testing.T) {
		err := fmt.Errorf("connect bus: %w", apperr.Connection("rabbitmq", base))
		assert.True(t, apperr.IsConnection(err))
		assert.False(t, apperr.IsNotFound(err))
		assert.ErrorIs(t, err, base)
	})

	t.Run("not found", func(t *testing.T) {
		err := apperr.NotFound("post", "p1")
		assert.True(t, apperr.IsNotFound(err))
		assert.Equal(t, "post p1 not found", err.Error())
	})

	t.Run("validation", func(t *testing.T) {
		err := apperr.Validation("content", "is required")
		assert.True(t, apperr.IsValidation(err))
		assert.Equal(t, "validation failed: content is required", err.Error())
	})

	t.Run("handler keeps cause", func(t *testing.T) {
		err := apperr.Handler("content.deleted", base)
		assert.True(t, apperr.IsHandler(err))
		assert.ErrorIs(t, err, base)
	})
}
