package errors

import (
	stdErrors "errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Money and fulfillment outcomes.
	CodeSignatureInvalid    Code = "SIGNATURE_INVALID"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodePayoutMethodMissing Code = "PAYOUT_METHOD_NOT_CONFIGURED"
	CodePayoutFailed        Code = "PAYOUT_FAILED"
	CodeFulfillmentFailed   Code = "FULFILLMENT_FAILED"
)

// Metadata is how a code surfaces over HTTP. Retryable tells webhook
// providers and API clients whether sending the same request again can help.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	private   = false
	details   = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, final, "validation failed", details},
	CodeUnauthorized:  {http.StatusUnauthorized, final, "authentication required", private},
	CodeForbidden:     {http.StatusForbidden, final, "access denied", private},
	CodeNotFound:      {http.StatusNotFound, final, "resource not found", private},
	CodeConflict:      {http.StatusConflict, final, "conflict detected", private},
	CodeStateConflict: {http.StatusUnprocessableEntity, final, "state transition disallowed", details},
	CodeIdempotency:   {http.StatusConflict, final, "idempotency key reused", details},
	CodeRateLimit:     {http.StatusTooManyRequests, final, "rate limit exceeded", private},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", private},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", details},

	CodeSignatureInvalid:    {http.StatusBadRequest, final, "event signature verification failed", private},
	CodeInsufficientBalance: {http.StatusUnprocessableEntity, final, "insufficient balance", details},
	CodePayoutMethodMissing: {http.StatusBadRequest, final, "payout method not configured", private},
	CodePayoutFailed:        {http.StatusBadGateway, retryable, "payout failed, balance restored", details},
	CodeFulfillmentFailed:   {http.StatusBadGateway, retryable, "supplier order failed", details},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The message is for logs; clients only ever see the
// code, the public message and, when allowed, the details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code to cause. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// As finds the first coded error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether err is worth retrying. Uncoded errors are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return true
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	if e.message != "" {
		b.WriteString(": ")
		b.WriteString(e.message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches on code, and on message when the target sets one, so a
// New(code, "") value works as a sentinel with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && (t.message == "" || t.message == e.message)
}
