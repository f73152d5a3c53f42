package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeUnknownCell, "row %d: cell index %d out of range", 3, 99)

	if err.Code != ErrCodeUnknownCell {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnknownCell)
	}

	if err.Message != "row 3: cell index 99 out of range" {
		t.Errorf("Message = %v, want %v", err.Message, "row 3: cell index 99 out of range")
	}

	expected := "UNKNOWN_CELL: row 3: cell index 99 out of range"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("no such file")
	err := Wrap(ErrCodeMissingDataset, cause, "open cell_id")

	if err.Code != ErrCodeMissingDataset {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingDataset)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	expected := "MISSING_DATASET: open cell_id: no such file"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeShapeMismatch, "test"),
			code:     ErrCodeShapeMismatch,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeShapeMismatch, "test"),
			code:     ErrCodeCorruptPolygon,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeInternal, New(ErrCodeEmptyPolygon, "inner"), "outer"),
			code:     ErrCodeInternal,
			expected: true,
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("polygon set 1: %w", New(ErrCodeCorruptPolygon, "row 7")),
			code:     ErrCodeCorruptPolygon,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeEmptyPolygon, "test"),
			expected: ErrCodeEmptyPolygon,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidInput, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsConversion(t *testing.T) {
	for _, code := range []Code{
		ErrCodeShapeMismatch,
		ErrCodeCorruptPolygon,
		ErrCodeUnknownCell,
		ErrCodeEmptyPolygon,
		ErrCodeMissingDataset,
	} {
		if !IsConversion(New(code, "x")) {
			t.Errorf("IsConversion(%s) = false, want true", code)
		}
	}
	if IsConversion(New(ErrCodeInvalidInput, "x")) {
		t.Error("IsConversion(INVALID_INPUT) = true, want false")
	}
	if IsConversion(errors.New("plain")) {
		t.Error("IsConversion(plain) = true, want false")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(ErrCodeInvalidInput, "x"), 400},
		{New(ErrCodeNotFound, "x"), 404},
		{New(ErrCodeUnsupported, "x"), 501},
		{New(ErrCodeNetwork, "x"), 502},
		{New(ErrCodeInternal, "x"), 500},
		{errors.New("plain"), 500},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
