package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeUpstreamUnavailable, "ollama unreachable", nil)
	assert.Equal(t, CategoryUpstreamUnavailable, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.True(t, err.Retryable)

	err = New(ErrCodeInvalidCollection, "bad name", nil)
	assert.Equal(t, CategoryInputValidation, err.Category)
	assert.Equal(t, SeverityWarning, err.Severity)
	assert.False(t, err.Retryable)
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	sentinel := New(ErrCodeModelMismatch, "", nil)
	wrapped := Wrap(ErrCodeModelMismatch, errors.New("boom"))
	assert.True(t, errors.Is(wrapped, sentinel))
}

func TestCategoryHTTPStatus(t *testing.T) {
	require.Equal(t, 400, CategoryInputValidation.HTTPStatus())
	require.Equal(t, 503, CategoryNotReady.HTTPStatus())
	require.Equal(t, 502, CategoryUpstreamError.HTTPStatus())
	require.Equal(t, 500, CategoryStoreCorrupt.HTTPStatus())
}

func TestDimensionMismatchDetails(t *testing.T) {
	err := DimensionMismatch(768, 384)
	assert.Equal(t, "768", err.Details["expected"])
	assert.Equal(t, "384", err.Details["got"])
}
