// Package lightning defines the consumed Lightning Client boundary: HODL
// invoice lifecycle, outbound payments, and the two subscription streams
// the ticket and payout watchers read from.
package lightning

import (
	"context"
	"time"

	"github.com/5day4cast/coordinator-core/internal/build"
)

var log = build.Logger(build.SubsystemLightning)

// InvoiceState mirrors the wire states of an added HODL invoice.
type InvoiceState string

const (
	InvoiceOpen     InvoiceState = "open"
	InvoiceAccepted InvoiceState = "accepted"
	InvoiceSettled  InvoiceState = "settled"
	InvoiceCanceled InvoiceState = "canceled"
)

// InvoiceUpdate is one item off the invoice subscription stream.
type InvoiceUpdate struct {
	Hash       [32]byte
	State      InvoiceState
	AmtPaidSat int64
}

// PaymentState mirrors the outbound payment lifecycle.
type PaymentState string

const (
	PaymentInFlight  PaymentState = "in_flight"
	PaymentSucceeded PaymentState = "succeeded"
	PaymentFailed    PaymentState = "failed"
)

// PaymentUpdate is one item off the payment subscription stream.
type PaymentUpdate struct {
	Hash     [32]byte
	Status   PaymentState
	Failure  string
	Preimage []byte
}

// Invoice is what a lookup or add call returns about a single invoice.
type Invoice struct {
	Hash          [32]byte
	PaymentRequest string
	State          InvoiceState
	AmtPaidSat     int64
}

// Client is the capability set the coordinator needs of a Lightning node,
// spec §6: "add-hold-invoice, settle, cancel, lookup, send_payment,
// subscribe-invoices, subscribe-payments."
type Client interface {
	AddHoldInvoice(
		ctx context.Context,
		amountSats int64,
		expiry time.Duration,
		paymentHash [32]byte,
		competitionID string,
		memo string,
	) (string, error)

	SettleInvoice(ctx context.Context, preimage []byte) error
	CancelInvoice(ctx context.Context, hash [32]byte) error
	LookupInvoice(ctx context.Context, hash [32]byte) (*Invoice, error)

	SendPayment(
		ctx context.Context,
		invoice string,
		amountSats int64,
		timeout time.Duration,
		feeCapSats int64,
	) error

	SubscribeInvoices(ctx context.Context) (<-chan InvoiceUpdate, <-chan error, error)
	SubscribePayments(ctx context.Context) (<-chan PaymentUpdate, <-chan error, error)
}
