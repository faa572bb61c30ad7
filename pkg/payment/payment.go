// Package payment defines the contracts between checkout and the external
// payment rails. Adapters live in subpackages.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrGatewayUnavailable marks a transient upstream failure: network
	// errors, timeouts and 5xx answers. Nothing was committed on our side and
	// the caller may retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrChargeRejected marks a request the provider refused as invalid,
	// such as an unknown mobile number. Retrying it unchanged will not help.
	ErrChargeRejected = errors.New("payment request rejected")
	// ErrSessionNotFound marks an unknown or forged session id.
	ErrSessionNotFound = errors.New("payment session not found")
)

// LineItem is what the hosted checkout page shows the customer.
type LineItem struct {
	Ref       string
	Quantity  int
	UnitPrice int64
}

// SessionRequest describes a hosted-redirect checkout session.
type SessionRequest struct {
	Lines    []LineItem
	Amount   int64
	Currency string
	// Metadata is stored by the gateway and returned verbatim on retrieval.
	Metadata map[string]string
}

// Session is a created hosted checkout session.
type Session struct {
	ID          string
	RedirectURL string
}

// SessionStatus is the gateway's view of a session. Retrieval is a pure read.
type SessionStatus struct {
	Paid        bool
	AmountTotal int64
	Metadata    map[string]string
}

// CardGateway is the hosted-redirect card processor.
type CardGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
}

// ChargeStatus is the normalized state of a wallet charge.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeCompleted ChargeStatus = "completed"
	ChargeFailed    ChargeStatus = "failed"
)

// ChargeRequest describes a wallet charge. ReferenceID is generated by the
// caller and echoed back by the wallet's completion callback.
type ChargeRequest struct {
	Amount        int64
	Currency      string
	ContactHandle string
	ReferenceID   string
}

// Charge is a created wallet charge.
type Charge struct {
	ID          string
	RedirectURL string
	Status      ChargeStatus
}

// WalletGateway is the asynchronous wallet rail.
type WalletGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

// CallbackEvent is a wallet completion callback reduced to what checkout
// needs.
type CallbackEvent struct {
	ReferenceID string
	Status      ChargeStatus
}

// Deadline returns the timeout to apply to a gateway call: the configured
// limit, shortened to whatever remains of ctx's deadline.
func Deadline(ctx context.Context, limit time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < limit {
			return remaining
		}
	}
	return limit
}
