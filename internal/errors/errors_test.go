package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid rect", NewInvalidRectError(0, 10, 10, 5, 5, "x1 < x0"), http.StatusBadRequest},
		{"invalid parameter", NewInvalidParameterError("zoom", 0), http.StatusBadRequest},
		{"duplicate label", NewDuplicateLabelError("name"), http.StatusBadRequest},
		{"not found", NewNotFoundError("template", "abc"), http.StatusNotFound},
		{"lock timeout", NewLockTimeoutError("doc", time.Second), http.StatusConflict},
		{"unavailable", NewDocumentUnavailableError("doc", nil), http.StatusUnprocessableEntity},
		{"wrapped", fmt.Errorf("outer: %w", NewNotFoundError("pdf", "x")), http.StatusNotFound},
		{"redaction", NewRedactionFailedError("name", 0, stderrors.New("boom")), http.StatusInternalServerError},
		{"plain", stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestServiceErrorIsAndUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("generate: %w", NewRedactionFailedError("total", 2, cause))

	if !stderrors.Is(err, &ServiceError{Code: ErrorRedactionFailed}) {
		t.Error("expected errors.Is to match on code")
	}
	if stderrors.Is(err, &ServiceError{Code: ErrorDrawFailure}) {
		t.Error("errors.Is matched a different code")
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if CodeOf(err) != ErrorRedactionFailed {
		t.Errorf("CodeOf() = %q", CodeOf(err))
	}
}

func TestToMap(t *testing.T) {
	err := NewInvalidRectError(3, 1, 2, 0, 4, "x1 < x0")
	m := err.ToMap()

	if m["error_code"] != "INVALID_RECT" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["page"] != 3 {
		t.Errorf("page = %v", m["page"])
	}
	if _, ok := m["cause"]; ok {
		t.Error("cause should be absent when nil")
	}
}
