package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("notification", nil).HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, BadRequest("bad", nil).HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, Unauthorized(nil).HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Forbidden("no", nil).HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, Unavailable("down", nil).HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Internal(nil).HTTPStatus())
}

func TestAsUnwrapsWrappedAppError(t *testing.T) {
	base := NotFound("notification", errors.New("no rows"))
	wrapped := fmt.Errorf("click: %w", base)

	assert.Same(t, base, As(wrapped))
	assert.Equal(t, "notification not found: no rows", base.Error())

	plain := As(errors.New("boom"))
	assert.Equal(t, ErrInternal, plain.Code)
}
