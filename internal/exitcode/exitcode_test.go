package exitcode

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"ValidationError", ValidationError, 3},
		{"NotFound", NotFound, 4},
		{"AuthError", AuthError, 5},
		{"NetworkError", NetworkError, 6},
		{"ServerError", ServerError, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "sign-in required",
			err:      errors.AuthRequired("create item"),
			expected: AuthError,
		},
		{
			name:     "admin required",
			err:      errors.AdminRequired("list users"),
			expected: AuthError,
		},
		{
			name:     "local validation",
			err:      errors.Validation("title must be between 3 and 100 characters"),
			expected: ValidationError,
		},
		{
			name:     "backend not found",
			err:      errors.FromStatus(http.StatusNotFound, "Item not found"),
			expected: NotFound,
		},
		{
			name:     "network failure",
			err:      errors.Network("inbox", fmt.Errorf("connection refused")),
			expected: NetworkError,
		},
		{
			name:     "server failure",
			err:      errors.FromStatus(http.StatusBadGateway, ""),
			expected: ServerError,
		},
		{
			name:     "wrapped failure keeps its kind",
			err:      fmt.Errorf("delete: %w", errors.FromStatus(http.StatusForbidden, "")),
			expected: AuthError,
		},
		{
			name:     "unknown failure",
			err:      errors.FromStatus(http.StatusMultipleChoices, ""),
			expected: GeneralError,
		},
		{
			name:     "unknown command",
			err:      fmt.Errorf(`unknown command "frobnicate" for "lostfound"`),
			expected: UsageError,
		},
		{
			name:     "unknown flag",
			err:      fmt.Errorf("unknown flag: --nope"),
			expected: UsageError,
		},
		{
			name:     "wrong arg count",
			err:      fmt.Errorf("accepts 1 arg(s), received 0"),
			expected: UsageError,
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("something went wrong"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineExitCode(tt.err)
			if got != tt.expected {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	for _, code := range []int{Success, GeneralError, UsageError, ValidationError, NotFound, AuthError, NetworkError, ServerError} {
		if desc := GetExitCodeDescription(code); desc == "" || desc == "Unknown error" {
			t.Errorf("GetExitCodeDescription(%d) = %q", code, desc)
		}
	}
	if desc := GetExitCodeDescription(99); desc != "Unknown error" {
		t.Errorf("GetExitCodeDescription(99) = %q, want Unknown error", desc)
	}
}
