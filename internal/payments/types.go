package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/types"
)

// Customer is the buyer identity captured by the payment provider.
type Customer struct {
	Email string
	Name  string
}

// PaymentCompleted is a verified, provider-neutral payment notification.
// EventID is the idempotency key within Provider.
type PaymentCompleted struct {
	Provider        enums.PaymentProvider
	EventID         string
	ProviderRef     string
	StoreSlug       string
	AmountPaidCents int64
	Currency        string
	Customer        Customer
	ShippingAddress types.ShippingAddress
}

func (p PaymentCompleted) validate() error {
	if !p.Provider.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment provider %q", p.Provider))
	}
	if strings.TrimSpace(p.EventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if strings.TrimSpace(p.StoreSlug) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "store slug is required")
	}
	if p.AmountPaidCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount paid must not be negative")
	}
	return nil
}

// IngestResult is the order created by a first delivery.
type IngestResult struct {
	Order *models.Order
}

// ErrStoreNotFound rejects payments for stores this service does not know.
var ErrStoreNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "store not found")

// DuplicateEventError reports a provider event that was already applied.
type DuplicateEventError struct {
	Provider enums.PaymentProvider
	EventID  string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("%s event %s already processed", e.Provider, e.EventID)
}

// Unwrap exposes the API error code.
func (e *DuplicateEventError) Unwrap() error {
	return pkgerrors.New(pkgerrors.CodeConflict, e.Error())
}

// IsDuplicateEvent reports whether err is a DuplicateEventError.
func IsDuplicateEvent(err error) bool {
	var target *DuplicateEventError
	return errors.As(err, &target)
}

// SignatureVerificationError rejects a notification whose authenticity could
// not be established. Nothing is written.
type SignatureVerificationError struct {
	Provider enums.PaymentProvider
	Err      error
}

func (e *SignatureVerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s webhook verification failed", e.Provider)
	}
	return fmt.Sprintf("%s webhook verification failed: %v", e.Provider, e.Err)
}

// Unwrap exposes the API error code.
func (e *SignatureVerificationError) Unwrap() error {
	return pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, e.Err, "webhook signature invalid")
}

// Outcome summarizes how a notification was handled.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)
