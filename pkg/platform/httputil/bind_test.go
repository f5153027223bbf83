package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "anagolay/pkg/domain-errors"
)

type bindPayload struct {
	Holder string `json:"holder" validate:"required,account"`
	Limit  int    `json:"limit" validate:"min=1,max=10"`
}

func newRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSON(t *testing.T) {
	holder := strings.Repeat("ab", 32)

	t.Run("valid", func(t *testing.T) {
		got, err := DecodeJSON[bindPayload](newRequest(`{"holder":"` + holder + `","limit":3}`))
		require.NoError(t, err)
		assert.Equal(t, bindPayload{Holder: holder, Limit: 3}, got)
	})

	tests := []struct {
		name string
		body string
		code dErrors.Code
		msg  string
	}{
		{"empty body", ``, dErrors.CodeBadRequest, "required"},
		{"malformed", `{"holder":`, dErrors.CodeBadRequest, "invalid JSON"},
		{"unknown field", `{"holder":"` + holder + `","limit":1,"extra":true}`, dErrors.CodeBadRequest, "invalid JSON"},
		{"trailing data", `{"holder":"` + holder + `","limit":1}{}`, dErrors.CodeBadRequest, "trailing"},
		{"bad account", `{"holder":"0x12","limit":1}`, dErrors.CodeValidation, "holder must be a 32-byte hex account id"},
		{"out of range", `{"holder":"` + holder + `","limit":11}`, dErrors.CodeValidation, "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON[bindPayload](newRequest(tt.body))
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
