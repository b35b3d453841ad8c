package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{"NOT_FOUND", http.StatusNotFound},
		{"INVALID_INPUT", http.StatusBadRequest},
		{"INVALID_STATE", http.StatusUnprocessableEntity},
		{"PERMISSION_DENIED", http.StatusForbidden},
		{"CONCURRENCY_CONFLICT", http.StatusConflict},
		{"ALREADY_EXISTS", http.StatusConflict},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{"SOMETHING_UNKNOWN", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, GetHTTPStatus(tt.code), tt.code)
	}
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2, 3}, 45, 2, 20)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(45), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	exact := NewSuccessResponseWithMeta(nil, 40, 1, 20)
	assert.Equal(t, 2, exact.Meta.TotalPages)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("NOT_FOUND", "Requisition not found", "req-1")
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "req-1", resp.RequestID)
}
