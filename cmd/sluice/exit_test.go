package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Must not exit or panic on a nil error.
	exitErrHandler(nil, nil)
}

func TestExitCoder_CodesPassThrough(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"success", 0},
		{"parse_error_threshold", 1},
		{"stream_error", 2},
		{"delivery_failure", 3},
		{"canceled", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.Exit("", tt.code)

			var exitCoder cli.ExitCoder
			if !errors.As(err, &exitCoder) {
				t.Fatal("cli.Exit should return an ExitCoder")
			}
			if exitCoder.ExitCode() != tt.code {
				t.Errorf("ExitCode() = %d, want %d", exitCoder.ExitCode(), tt.code)
			}
		})
	}
}

func TestExitCoder_WrappedStillMatches(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), cli.Exit("inner", 2))

	var exitCoder cli.ExitCoder
	if !errors.As(wrapped, &exitCoder) {
		t.Fatal("wrapped error should still match cli.ExitCoder")
	}
	if exitCoder.ExitCode() != 2 {
		t.Errorf("ExitCode() = %d, want 2", exitCoder.ExitCode())
	}
}

func TestRegularError_NotExitCoder(t *testing.T) {
	var exitCoder cli.ExitCoder
	if errors.As(errors.New("plain"), &exitCoder) {
		t.Fatal("plain errors should not match cli.ExitCoder")
	}
}
