package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{NewValidationError("bad", nil), ErrorTypeValidation, http.StatusBadRequest},
		{NewNetworkError("down", nil), ErrorTypeNetwork, http.StatusBadGateway},
		{NewProcessingError("crop", nil), ErrorTypeProcessing, http.StatusUnprocessableEntity},
		{NewTimeoutError("slow", nil), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{NewConfigurationError("no key", nil), ErrorTypeConfiguration, http.StatusPreconditionFailed},
		{NewConflictError("no document", nil), ErrorTypeConflict, http.StatusConflict},
		{NewNotFoundError("gone", nil), ErrorTypeNotFound, http.StatusNotFound},
		{NewInternalError("boom", nil), ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			if tt.err.Type != tt.wantType || tt.err.StatusCode != tt.wantStatus {
				t.Errorf("got %s/%d, want %s/%d", tt.err.Type, tt.err.StatusCode, tt.wantType, tt.wantStatus)
			}
			if !IsType(tt.err, tt.wantType) {
				t.Error("IsType should match the constructor type")
			}
		})
	}
}

func TestWrappedAppError(t *testing.T) {
	cause := errors.New("disk full")
	appErr := NewInternalError("save failed", cause)
	wrapped := fmt.Errorf("settings: %w", appErr)

	if !IsType(wrapped, ErrorTypeInternal) {
		t.Error("IsType should see through wrapping")
	}
	if GetStatusCode(wrapped) != http.StatusInternalServerError {
		t.Errorf("status = %d", GetStatusCode(wrapped))
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable")
	}
	if !strings.Contains(appErr.Error(), "disk full") {
		t.Errorf("Error() = %q", appErr.Error())
	}
	if GetStatusCode(cause) != http.StatusInternalServerError {
		t.Error("plain errors map to 500")
	}
}
