package fault_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"proofmeet/internal/fault"
)

func TestErrorfKeepsCategoryMatchable(t *testing.T) {
	err := fault.Errorf(fault.ErrConflict, "open attendance exists for %s", "p1")
	assert.ErrorIs(t, err, fault.ErrConflict)
	assert.Contains(t, err.Error(), "p1")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		fault.ErrInvalidInput:    http.StatusBadRequest,
		fault.ErrNotFound:        http.StatusNotFound,
		fault.ErrConflict:        http.StatusConflict,
		fault.ErrInvalidState:    http.StatusUnprocessableEntity,
		fault.ErrPrecondition:    http.StatusUnprocessableEntity,
		fault.ErrAuth:            http.StatusBadGateway,
		fault.ErrHostUnavailable: http.StatusGatewayTimeout,
		fault.ErrConfiguration:   http.StatusServiceUnavailable,
	}
	for err, want := range cases {
		assert.Equal(t, want, fault.HTTPStatus(fault.Errorf(err, "wrapped")))
	}
	assert.Equal(t, http.StatusInternalServerError, fault.HTTPStatus(assert.AnError))
}
