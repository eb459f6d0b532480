package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *ServiceError
		code   ErrorCode
		status int
	}{
		{"validation", Validation("bad"), CodeValidation, http.StatusBadRequest},
		{"capacity", CapacityExceeded("addresses", 3), CodeCapacityExceeded, http.StatusConflict},
		{"unauthenticated", Unauthenticated(""), CodeUnauthenticated, http.StatusUnauthorized},
		{"unauthorized", Unauthorized("", nil), CodeUnauthorized, http.StatusUnauthorized},
		{"not found", NotFound("address", "a1"), CodeNotFound, http.StatusNotFound},
		{"rejected", RemoteRejected("", nil), CodeRemoteRejected, http.StatusBadGateway},
		{"transport", Transport("", nil), CodeTransport, http.StatusBadGateway},
		{"rate", RateLimitExceeded(10, "1s"), CodeRateLimited, http.StatusTooManyRequests},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestCapacityExceededMessage(t *testing.T) {
	err := CapacityExceeded("addresses", 3)
	assert.Equal(t, "You can save up to 3 addresses", err.Message)
	assert.Equal(t, 3, err.Details["limit"])
}

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	wrapped := fmt.Errorf("list addresses: %w", Transport("", cause))

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeTransport, se.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, Is(wrapped, CodeTransport))
	assert.False(t, Is(wrapped, CodeUnauthorized))
}

func TestGetServiceErrorPlainError(t *testing.T) {
	assert.Nil(t, GetServiceError(stderrors.New("plain")))
	assert.False(t, Is(nil, CodeInternal))
}

type fakeRemoteErr struct {
	status int
}

func (e fakeRemoteErr) Error() string        { return fmt.Sprintf("remote %d", e.status) }
func (e fakeRemoteErr) IsUnauthorized() bool { return e.status == http.StatusUnauthorized }
func (e fakeRemoteErr) IsRejection() bool    { return true }

func TestFromRemote(t *testing.T) {
	assert.Nil(t, FromRemote(nil, "x"))

	se := FromRemote(fmt.Errorf("save: %w", fakeRemoteErr{status: 401}), "Could not save")
	assert.Equal(t, CodeUnauthorized, se.Code)

	se = FromRemote(fakeRemoteErr{status: 422}, "Could not save")
	assert.Equal(t, CodeRemoteRejected, se.Code)
	assert.Equal(t, "Could not save", se.Message)

	se = FromRemote(stderrors.New("connection refused"), "Could not save")
	assert.Equal(t, CodeTransport, se.Code)

	existing := NotFound("address", "a1")
	assert.Same(t, existing, FromRemote(existing, "ignored"))
}
