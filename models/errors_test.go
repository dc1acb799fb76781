package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsRetryable_ByConstructor(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"infra", NewInfraError("bad config", nil), false},
		{"browser", NewBrowserError("net blip", nil), true},
		{"parse", NewParseError("dom changed", nil), false},
		{"db transient", NewDBTransientError("deadlock", nil), true},
		{"db invariant", NewDBInvariantError("row missing", nil), false},
		{"unclassified", errors.New("mystery"), true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsRetryable(c.err); got != c.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, c.retryable)
			}
		})
	}
}

func TestIsRetryable_SurvivesWrapping(t *testing.T) {
	inner := NewParseError("dom changed", nil)
	wrapped := fmt.Errorf("step failed: %w", inner)

	if IsRetryable(wrapped) {
		t.Error("wrapping must not change retryability")
	}
	if CodeOf(wrapped) != ErrCodeParse {
		t.Errorf("code = %s, want %s", CodeOf(wrapped), ErrCodeParse)
	}
}

func TestScrapeError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewBrowserError("navigation failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	msg := err.Error()
	for _, want := range []string{ErrCodeBrowser, "navigation failed", "connection reset"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestCodeOf_UnknownError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("CodeOf = %s, want %s", got, ErrCodeInternal)
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	if StatusPending.Terminal() || StatusRunning.Terminal() {
		t.Error("pending and running are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}
