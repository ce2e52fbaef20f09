package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataSurfaces(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:          {http.StatusBadRequest, final, "validation failed", details},
		CodeUnauthorized:        {http.StatusUnauthorized, final, "authentication required", private},
		CodeStateConflict:       {http.StatusUnprocessableEntity, final, "state transition disallowed", details},
		CodeIdempotency:         {http.StatusConflict, final, "idempotency key reused", details},
		CodeDependency:          {http.StatusServiceUnavailable, retryable, "dependency unavailable", details},
		CodeSignatureInvalid:    {http.StatusBadRequest, final, "event signature verification failed", private},
		CodeInsufficientBalance: {http.StatusUnprocessableEntity, final, "insufficient balance", details},
		CodePayoutFailed:        {http.StatusBadGateway, retryable, "payout failed, balance restored", details},
		CodeFulfillmentFailed:   {http.StatusBadGateway, retryable, "supplier order failed", details},
	}
	for code, meta := range want {
		if got := MetadataFor(code); got != meta {
			t.Fatalf("%s: got %+v want %+v", code, got, meta)
		}
	}

	// Internal failures never leak details to clients.
	if MetadataFor(CodeInternal).DetailsAllowed {
		t.Fatal("internal errors must not expose details")
	}
	if got := MetadataFor("SOMETHING_UNKNOWN"); got != MetadataFor(CodeInternal) {
		t.Fatalf("unknown code should fall back to internal, got %+v", got)
	}
}

func TestEveryCodeHasMetadata(t *testing.T) {
	for code, meta := range metadataByCode {
		if meta.HTTPStatus < 400 || meta.PublicMessage == "" {
			t.Fatalf("%s has incomplete metadata %+v", code, meta)
		}
	}
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeConflict, cause, "pending payout exists").WithDetails(map[string]any{"payout_id": "PO-1"})

	if !stdErrors.Is(err, cause) {
		t.Fatal("Wrap lost its cause")
	}
	if err.Code() != CodeConflict || err.Message() != "pending payout exists" {
		t.Fatalf("unexpected code/message %s %q", err.Code(), err.Message())
	}
	if details, ok := err.Details().(map[string]any); !ok || details["payout_id"] != "PO-1" {
		t.Fatalf("details lost: %#v", err.Details())
	}
	if New(CodeValidation, "x").Details() != nil {
		t.Fatal("details should be nil by default")
	}

	var nilErr *Error
	if nilErr.Code() != CodeInternal || nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Fatal("nil *Error accessors should be safe")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsMatchesOnCode(t *testing.T) {
	sentinel := New(CodeInsufficientBalance, "")
	err := fmt.Errorf("debit seller: %w", New(CodeInsufficientBalance, "balance 3000 below 5000"))
	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("expected different code not to match")
	}
	if !HasCode(err, CodeInsufficientBalance) {
		t.Fatalf("expected HasCode to find the code")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"uncoded", stdErrors.New("connection reset"), true},
		{"dependency", Wrap(CodeDependency, stdErrors.New("timeout"), "cj create order"), true},
		{"signature", fmt.Errorf("stripe: %w", New(CodeSignatureInvalid, "bad header")), false},
		{"insufficient balance", New(CodeInsufficientBalance, "balance 3000 below 5000"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: timeout"), "load order")
	if got := err.Error(); got != "DEPENDENCY_ERROR: load order: dial tcp: timeout" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := New(CodeNotFound, "").Error(); got != "NOT_FOUND" {
		t.Fatalf("unexpected error string %q", got)
	}
}
