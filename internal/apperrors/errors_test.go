package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", InvalidArgument("bad"), http.StatusBadRequest},
		{"validation", NewValidationError("amounts", "mismatch"), http.StatusBadRequest},
		{"not found", NotFound("order %d not found", 1), http.StatusNotFound},
		{"conflict", Conflict("already paid"), http.StatusConflict},
		{"signature", SignatureInvalid("no match"), http.StatusBadRequest},
		{"upstream rejected", New(KindUpstream, "declined"), http.StatusBadRequest},
		{"upstream unavailable", New(KindUpstreamUnavailable, "timeout"), http.StatusBadGateway},
		{"wrapped", fmt.Errorf("context: %w", NotFound("x")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("no rows")
	err := Wrap(KindNotFound, cause, "order %d not found", 3)

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "not_found: order 3 not found: no rows", err.Error())

	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
	assert.False(t, IsNotFound(nil))
}
