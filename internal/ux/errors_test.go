package ux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	ocerrors "github.com/opencall/opencall/internal/errors"
)

func TestNewErrorWithSuggestion(t *testing.T) {
	if got := NewErrorWithSuggestion(nil, "anything"); got != nil {
		t.Errorf("NewErrorWithSuggestion(nil) = %v, want nil", got)
	}

	base := errors.New("something failed")
	err := NewErrorWithSuggestion(base, "try this fix")
	if !strings.Contains(err.Error(), "something failed") || !strings.Contains(err.Error(), "Suggestion: try this fix") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("suggestion wrapper should unwrap to the original error")
	}

	plain := NewErrorWithSuggestion(base, "")
	if plain.Error() != "something failed" {
		t.Errorf("Error() without suggestion = %q", plain.Error())
	}
}

func TestEnhanceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantSuffix string
	}{
		{
			name:       "transport",
			err:        ocerrors.NewTransportError(errors.New("dial tcp: connection refused")),
			wantSuffix: "api.base_url",
		},
		{
			name:       "timeout",
			err:        ocerrors.NewTimeoutError(30000, context.DeadlineExceeded),
			wantSuffix: "api.timeout",
		},
		{
			name:       "authentication",
			err:        fmt.Errorf("list bookings: %w", ocerrors.NewAuthenticationError("", nil)),
			wantSuffix: "opencall login",
		},
		{
			name:       "forbidden",
			err:        &ocerrors.APIError{Kind: ocerrors.KindHTTP, Status: 403, Message: "Forbidden"},
			wantSuffix: "role",
		},
		{
			name:       "permission denied",
			err:        errors.New("open /root/.opencall/opencall-auth.json: permission denied"),
			wantSuffix: "session.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnhanceError(tt.err)
			var ws *ErrorWithSuggestion
			if !errors.As(got, &ws) {
				t.Fatalf("EnhanceError(%v) added no suggestion", tt.err)
			}
			if !strings.Contains(ws.Suggestion, tt.wantSuffix) {
				t.Errorf("suggestion = %q, want it to mention %q", ws.Suggestion, tt.wantSuffix)
			}
		})
	}
}

func TestEnhanceErrorLeavesOthersAlone(t *testing.T) {
	if EnhanceError(nil) != nil {
		t.Error("EnhanceError(nil) should be nil")
	}

	tests := []error{
		errors.New("something went wrong"),
		&ocerrors.APIError{Kind: ocerrors.KindValidation, Status: 422, Message: "email: taken"},
		&ocerrors.APIError{Kind: ocerrors.KindHTTP, Status: 500, Message: "boom"},
		ocerrors.NewNotAuthenticatedError(),
		NewErrorWithSuggestion(errors.New("x"), "y"),
	}
	for _, err := range tests {
		if got := EnhanceError(err); got != err {
			t.Errorf("EnhanceError(%v) = %v, want it unchanged", err, got)
		}
	}
}

func TestFormatError(t *testing.T) {
	if FormatError(nil, "ctx") != nil {
		t.Error("FormatError(nil) should be nil")
	}

	err := FormatError(ocerrors.NewTransportError(errors.New("refused")), "loading mentor")
	if !strings.HasPrefix(err.Error(), "loading mentor: ") {
		t.Errorf("FormatError() = %q", err.Error())
	}
	var apiErr *ocerrors.APIError
	if !errors.As(err, &apiErr) {
		t.Error("FormatError should keep the APIError reachable")
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, errors.New("boom"), true)
	if got := buf.String(); got != "Error: boom\n" {
		t.Errorf("PrintError() = %q", got)
	}

	buf.Reset()
	PrintError(&buf, nil, true)
	if buf.Len() != 0 {
		t.Errorf("PrintError(nil) wrote %q", buf.String())
	}
}
