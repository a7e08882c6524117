package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsFindsWrappedError(t *testing.T) {
	base := NotFound("item %d not found", 4)
	wrapped := fmt.Errorf("associate: %w", base)

	got := As(wrapped)
	if assert.NotNil(t, got) {
		assert.Equal(t, CodeNotFound, got.Code())
		assert.Equal(t, "item 4 not found", got.Message())
	}
	assert.True(t, Is(wrapped, CodeNotFound))
	assert.False(t, Is(wrapped, CodeConflict))
	assert.Nil(t, As(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeInternal, cause, "saving tag")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "INTERNAL_ERROR: saving tag: connection reset", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Code("bogus")))
}

func TestTrialBlockedIsForbidden(t *testing.T) {
	err := New(CodeTrialBlocked, "upgrade required")
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err.Code()))
}
