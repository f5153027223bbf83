package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("boom")
	inner := Wrap(cause, CodeConflict, "already issued")
	outer := fmt.Errorf("apply extrinsic: %w", Wrap(inner, CodeInternal, "dispatch failed"))

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.True(t, errors.Is(outer, cause))
	assert.False(t, HasCode(cause, CodeInternal))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(New(CodeNotFound, "missing")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:        http.StatusBadRequest,
		CodeForbidden:         http.StatusForbidden,
		CodeConflict:          http.StatusConflict,
		CodeInvalidState:      http.StatusConflict,
		CodeInsufficientFunds: http.StatusPaymentRequired,
		CodeLimitExceeded:     http.StatusTooManyRequests,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "not found", New(CodeNotFound, "not found").Error())
	assert.Equal(t, "load: db down", Wrap(errors.New("db down"), CodeInternal, "load").Error())
	assert.Equal(t, "db down", Wrap(errors.New("db down"), CodeInternal, "").Error())
}
