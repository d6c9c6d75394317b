package goTenant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/session"
)

func TestMapGatewayErrorKeepsBothLayers(t *testing.T) {
	for code, sentinel := range codeSentinels {
		gwErr := &gateway.Error{Status: 400, Code: code, Message: "backend says no"}
		err := mapGatewayError(gwErr)

		if !errors.Is(err, sentinel) {
			t.Fatalf("%s: expected %v, got %v", code, sentinel, err)
		}
		var got *gateway.Error
		if !errors.As(err, &got) || got != gwErr {
			t.Fatalf("%s: expected the gateway error to stay reachable", code)
		}
	}
}

func TestMapGatewayErrorFallbacks(t *testing.T) {
	if mapGatewayError(nil) != nil {
		t.Fatal("expected nil to map to nil")
	}

	unknown := mapGatewayError(&gateway.Error{Status: 418, Code: "teapot", Message: "short and stout"})
	if !errors.Is(unknown, ErrValidation) {
		t.Fatalf("expected unknown code to read as validation, got %v", unknown)
	}
	if got := UserMessage(unknown); got != "short and stout" {
		t.Fatalf("expected backend message, got %q", got)
	}

	transport := mapGatewayError(errors.New("connection reset by peer"))
	if !errors.Is(transport, ErrTransient) {
		t.Fatalf("expected uncoded error to read as transient, got %v", transport)
	}

	deadline := mapGatewayError(context.DeadlineExceeded)
	if !errors.Is(deadline, ErrTransient) {
		t.Fatalf("expected deadline to read as transient, got %v", deadline)
	}

	noSession := mapGatewayError(session.ErrNoSession)
	if !errors.Is(noSession, ErrNotAuthenticated) || !errors.Is(noSession, session.ErrNoSession) {
		t.Fatalf("expected missing session to read as not authenticated, got %v", noSession)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("boom"), KindUnknown},
		{ErrInvalidEmail, KindValidation},
		{fmt.Errorf("wrapped: %w", ErrDuplicateRole), KindValidation},
		{ErrInvalidCredentials, KindAuthentication},
		{ErrUnauthorized, KindAuthentication},
		{ErrLastAdminLeave, KindAuthorization},
		{ErrKickAdmin, KindAuthorization},
		{ErrForbidden, KindAuthorization},
		{ErrTransient, KindTransient},
		{ErrStale, KindTransient},
		{context.Canceled, KindTransient},
		{mapGatewayError(gateway.Unavailable(errors.New("dial tcp"))), KindTransient},
		{mapGatewayError(&gateway.Error{Code: gateway.CodeLastAdmin}), KindAuthorization},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("Classify(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"sentinel", ErrPasswordMismatch, "Passwords do not match."},
		{"wrapped sentinel", fmt.Errorf("step: %w", ErrInviteExpired), "This invite has expired."},
		{"transient", mapGatewayError(errors.New("eof")), "Could not reach the server. Please try again."},
		{"cancelled", context.Canceled, "Could not reach the server. Please try again."},
		{"unknown", errors.New("internal detail"), "Something went wrong. Please try again."},
		{
			"backend validation",
			mapGatewayError(&gateway.Error{Code: gateway.CodeValidation, Message: "Username too short"}),
			"Username too short",
		},
		{
			"backend credentials",
			mapGatewayError(&gateway.Error{Code: gateway.CodeInvalidCredentials, Message: "raw"}),
			"Invalid email or password.",
		},
		{
			"wrong current password",
			mapGatewayError(&gateway.Error{Status: 401, Code: gateway.CodeWrongPassword, Message: "Old password is incorrect"}),
			"Your current password is incorrect.",
		},
	}

	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestEverySentinelHasAMessage(t *testing.T) {
	for _, entry := range kindTable {
		if entry.err == ErrValidation || entry.err == ErrConflict || entry.err == ErrNotFound ||
			entry.err == ErrClosed || entry.err == ErrStale {
			continue
		}
		if _, ok := messages[entry.err]; !ok {
			t.Fatalf("missing user message for %v", entry.err)
		}
	}
}
