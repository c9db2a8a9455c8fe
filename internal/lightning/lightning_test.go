package lightning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var _ Client = (*MockClient)(nil)

func TestMockClientAddHoldInvoiceIsLookupable(t *testing.T) {
	client := NewMockClient()
	hash := [32]byte{1, 2, 3}

	_, err := client.AddHoldInvoice(context.Background(), 1000, time.Hour, hash, "comp", "memo")
	require.NoError(t, err)

	inv, err := client.LookupInvoice(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, InvoiceOpen, inv.State)
	require.Equal(t, int64(1000), inv.AmtPaidSat)
}

func TestMockClientCancelInvoiceMarksCanceled(t *testing.T) {
	client := NewMockClient()
	hash := [32]byte{4, 5, 6}

	_, err := client.AddHoldInvoice(context.Background(), 500, time.Hour, hash, "comp", "memo")
	require.NoError(t, err)
	require.NoError(t, client.CancelInvoice(context.Background(), hash))

	inv, err := client.LookupInvoice(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, InvoiceCanceled, inv.State)
}

func TestMockClientSubscribeInvoicesDeliversPushedUpdates(t *testing.T) {
	client := NewMockClient()
	updates, _, err := client.SubscribeInvoices(context.Background())
	require.NoError(t, err)

	hash := [32]byte{7}
	client.PushInvoiceUpdate(InvoiceUpdate{Hash: hash, State: InvoiceAccepted, AmtPaidSat: 100})

	select {
	case u := <-updates:
		require.Equal(t, hash, u.Hash)
		require.Equal(t, InvoiceAccepted, u.State)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for invoice update")
	}
}
