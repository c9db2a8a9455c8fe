package lightning

import (
	"context"
	"sync"
	"time"
)

// MockClient is an in-memory Lightning Client stand-in for
// state-transition and watcher tests.
type MockClient struct {
	mu sync.Mutex

	Invoices map[[32]byte]*Invoice
	Sent     []string

	invoiceUpdates chan InvoiceUpdate
	paymentUpdates chan PaymentUpdate
}

func NewMockClient() *MockClient {
	return &MockClient{
		Invoices:       make(map[[32]byte]*Invoice),
		invoiceUpdates: make(chan InvoiceUpdate, 16),
		paymentUpdates: make(chan PaymentUpdate, 16),
	}
}

func (m *MockClient) AddHoldInvoice(
	_ context.Context,
	amountSats int64,
	_ time.Duration,
	paymentHash [32]byte,
	_ string,
	_ string,
) (string, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices[paymentHash] = &Invoice{Hash: paymentHash, State: InvoiceOpen, AmtPaidSat: amountSats}
	return "lnbc-mock-invoice", nil
}

func (m *MockClient) SettleInvoice(_ context.Context, preimage []byte) error {
	return nil
}

func (m *MockClient) CancelInvoice(_ context.Context, hash [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.Invoices[hash]; ok {
		inv.State = InvoiceCanceled
	}
	return nil
}

func (m *MockClient) LookupInvoice(_ context.Context, hash [32]byte) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Invoices[hash], nil
}

func (m *MockClient) SendPayment(_ context.Context, invoice string, _ int64, _ time.Duration, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, invoice)
	return nil
}

func (m *MockClient) SubscribeInvoices(context.Context) (<-chan InvoiceUpdate, <-chan error, error) {
	return m.invoiceUpdates, make(chan error), nil
}

func (m *MockClient) SubscribePayments(context.Context) (<-chan PaymentUpdate, <-chan error, error) {
	return m.paymentUpdates, make(chan error), nil
}

// PushInvoiceUpdate lets a test drive the subscription stream directly.
func (m *MockClient) PushInvoiceUpdate(u InvoiceUpdate) {
	m.invoiceUpdates <- u
}

// PushPaymentUpdate lets a test drive the subscription stream directly.
func (m *MockClient) PushPaymentUpdate(u PaymentUpdate) {
	m.paymentUpdates <- u
}
