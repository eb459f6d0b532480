package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-apothecary/storefront/internal/errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestWriteErrorServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/addresses", nil)
	rec.Header().Set("X-Trace-ID", "trace-1")

	WriteError(rec, req, errors.CapacityExceeded("addresses", 3))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	detail := decodeError(t, rec)
	assert.Equal(t, "CAPACITY_EXCEEDED", detail.Code)
	assert.Equal(t, "You can save up to 3 addresses", detail.Message)
	assert.Equal(t, "trace-1", detail.TraceID)
	assert.EqualValues(t, 3, detail.Details["limit"])
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), stderrors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "INTERNAL", detail.Code)
	assert.NotContains(t, detail.Message, "pq:")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Quantity int `json:"quantity"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"quantity":2}`, false},
		{"empty", ``, true},
		{"unknown field", `{"qty":2}`, true},
		{"trailing document", `{"quantity":2}{"quantity":3}`, true},
		{"wrong type", `{"quantity":"two"}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tc.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), req, &p)
			if tc.wantErr {
				assert.True(t, errors.Is(err, errors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, p.Quantity)
		})
	}
}
