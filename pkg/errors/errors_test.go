package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
		ok   bool
	}{
		{"processing error", NewProcessingError(ErrCodeProbeFailed, "probe", "boom", nil), ErrCodeProbeFailed, true},
		{"separator error", NewSeparatorError("demucs", "boom", nil), ErrCodeSeparatorFailed, true},
		{"download error", NewDownloadError("boom", true, nil), ErrCodeDownloadFailed, true},
		{"validation error", NewValidationError("field", "v", "boom"), ErrCodeValidation, true},
		{"queue state error", NewQueueStateError("id", "completed", "boom"), ErrCodeQueueState, true},
		{"plain error has no code", fmt.Errorf("plain"), "", false},
		{"wrapped typed error still resolves", fmt.Errorf("wrap: %w", NewDownloadError("boom", false, nil)), ErrCodeDownloadFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := CodeOf(tt.err)
			if ok != tt.ok || code != tt.want {
				t.Errorf("CodeOf() = (%v, %v), want (%v, %v)", code, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDownloadErrorTransientInMessage(t *testing.T) {
	transient := NewDownloadError("network blip", true, nil)
	permanent := NewDownloadError("bad url", false, nil)

	if got := transient.Error(); !contains(got, "transient") {
		t.Errorf("transient error message = %q, want it to mention transient", got)
	}
	if got := permanent.Error(); !contains(got, "permanent") {
		t.Errorf("permanent error message = %q, want it to mention permanent", got)
	}
}

func TestNomusicErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := NewProcessingError(ErrCodeProbeFailed, "probe", "failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
