package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestErrorTypesMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{ValidationError("bad input"), http.StatusBadRequest},
		{NotFoundError("missing"), http.StatusNotFound},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{ExternalError("upstream down", nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ExternalError("redis unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "redis unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToResponseHidesCause(t *testing.T) {
	err := InternalError("broadcast failed", stderrors.New("secret detail"))
	resp := err.ToResponse()

	assert.Equal(t, "broadcast failed", resp["error"])
	assert.Equal(t, "internal", resp["type"])
	assert.NotContains(t, resp, "cause")
}

func TestAsStructuredError(t *testing.T) {
	structured := ValidationError("nope")
	assert.Same(t, structured, AsStructuredError(structured))

	plain := stderrors.New("something broke")
	converted := AsStructuredError(plain)
	assert.Equal(t, TypeInternal, converted.Type)
	assert.ErrorIs(t, converted, plain)
}

func TestWrapHTTPError(t *testing.T) {
	wrapped := WrapHTTPError(echo.NewHTTPError(http.StatusNotFound, "no such route"))
	assert.Equal(t, TypeNotFound, wrapped.Type)
	assert.Equal(t, "no such route", wrapped.Message)

	wrapped = WrapHTTPError(echo.NewHTTPError(http.StatusTeapot))
	assert.Equal(t, TypeInternal, wrapped.Type)
}
