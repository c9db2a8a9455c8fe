package lightning

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/go-errors/errors"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
)

// LNDClient adapts lndclient's LightningClient, InvoicesClient, and
// RouterClient into the narrow Client surface this coordinator needs.
type LNDClient struct {
	lightning lndclient.LightningClient
	invoices  lndclient.InvoicesClient
	router    lndclient.RouterClient
}

func NewLNDClient(
	lightning lndclient.LightningClient,
	invoices lndclient.InvoicesClient,
	router lndclient.RouterClient,
) *LNDClient {
	return &LNDClient{lightning: lightning, invoices: invoices, router: router}
}

func (c *LNDClient) AddHoldInvoice(
	ctx context.Context,
	amountSats int64,
	expiry time.Duration,
	paymentHash [32]byte,
	competitionID string,
	memo string,
) (string, error) {

	hash, err := lntypes.MakeHash(paymentHash[:])
	if err != nil {
		return "", errors.Errorf("payment hash: %v", err)
	}

	_, payReq, err := c.invoices.AddHoldInvoice(ctx, &invoicesrpc.AddInvoiceData{
		Memo:   memo + " " + competitionID,
		Value:  btcutil.Amount(amountSats),
		Hash:   &hash,
		Expiry: int64(expiry.Seconds()),
	})
	if err != nil {
		return "", errors.Errorf("add hold invoice: %v", err)
	}
	return payReq, nil
}

func (c *LNDClient) SettleInvoice(ctx context.Context, preimage []byte) error {
	p, err := lntypes.MakePreimage(preimage)
	if err != nil {
		return errors.Errorf("preimage: %v", err)
	}
	return c.invoices.SettleInvoice(ctx, p)
}

func (c *LNDClient) CancelInvoice(ctx context.Context, hash [32]byte) error {
	h, err := lntypes.MakeHash(hash[:])
	if err != nil {
		return errors.Errorf("hash: %v", err)
	}
	return c.invoices.CancelInvoice(ctx, h)
}

func (c *LNDClient) LookupInvoice(ctx context.Context, hash [32]byte) (*Invoice, error) {
	h, err := lntypes.MakeHash(hash[:])
	if err != nil {
		return nil, errors.Errorf("hash: %v", err)
	}
	inv, err := c.lightning.LookupInvoice(ctx, h)
	if err != nil {
		return nil, errors.Errorf("lookup invoice: %v", err)
	}
	return &Invoice{
		Hash:       hash,
		State:      mapInvoiceState(inv.State),
		AmtPaidSat: int64(inv.AmtPaid.ToSatoshis()),
	}, nil
}

func (c *LNDClient) SendPayment(
	ctx context.Context,
	invoice string,
	amountSats int64,
	timeout time.Duration,
	feeCapSats int64,
) error {

	statusChan, errChan, err := c.router.SendPayment(ctx, lndclient.SendPaymentRequest{
		Invoice:  invoice,
		Amt:      btcutil.Amount(amountSats),
		FeeLimit: btcutil.Amount(feeCapSats),
		Timeout:  timeout,
	})
	if err != nil {
		return errors.Errorf("send payment: %v", err)
	}

	select {
	case status := <-statusChan:
		if status.State != lndclient.PaymentStateSucceeded {
			return errors.Errorf("payment did not succeed: %v", status.State)
		}
		return nil
	case err := <-errChan:
		return errors.Errorf("payment stream error: %v", err)
	case <-time.After(timeout):
		return errors.Errorf("payment timed out after %s", timeout)
	}
}

func (c *LNDClient) SubscribeInvoices(ctx context.Context) (<-chan InvoiceUpdate, <-chan error, error) {
	updates, errs, err := c.lightning.SubscribeInvoices(ctx, lndclient.SubscribeInvoicesRequest{})
	if err != nil {
		return nil, nil, errors.Errorf("subscribe invoices: %v", err)
	}

	out := make(chan InvoiceUpdate)
	outErrs := make(chan error)
	go func() {
		defer close(out)
		defer close(outErrs)
		for {
			select {
			case <-ctx.Done():
				return
			case inv, ok := <-updates:
				if !ok {
					return
				}
				var hash [32]byte
				copy(hash[:], inv.Hash[:])
				out <- InvoiceUpdate{
					Hash:       hash,
					State:      mapInvoiceState(inv.State),
					AmtPaidSat: int64(inv.AmtPaid.ToSatoshis()),
				}
			case err, ok := <-errs:
				if !ok {
					return
				}
				outErrs <- err
			}
		}
	}()
	return out, outErrs, nil
}

func (c *LNDClient) SubscribePayments(ctx context.Context) (<-chan PaymentUpdate, <-chan error, error) {
	updates, errs, err := c.router.SubscribeAllPayments(ctx)
	if err != nil {
		return nil, nil, errors.Errorf("subscribe payments: %v", err)
	}

	out := make(chan PaymentUpdate)
	outErrs := make(chan error)
	go func() {
		defer close(out)
		defer close(outErrs)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-updates:
				if !ok {
					return
				}
				var hash [32]byte
				copy(hash[:], p.Hash[:])
				out <- PaymentUpdate{
					Hash:     hash,
					Status:   mapPaymentState(p.State),
					Failure:  p.FailureReason.String(),
					Preimage: p.Preimage[:],
				}
			case err, ok := <-errs:
				if !ok {
					return
				}
				outErrs <- err
			}
		}
	}()
	return out, outErrs, nil
}

func mapInvoiceState(s lndclient.InvoiceState) InvoiceState {
	switch s {
	case lndclient.InvoiceStateOpen:
		return InvoiceOpen
	case lndclient.InvoiceStateAccepted:
		return InvoiceAccepted
	case lndclient.InvoiceStateSettled:
		return InvoiceSettled
	case lndclient.InvoiceStateCanceled:
		return InvoiceCanceled
	default:
		return InvoiceOpen
	}
}

func mapPaymentState(s lndclient.PaymentState) PaymentState {
	switch s {
	case lndclient.PaymentStateSucceeded:
		return PaymentSucceeded
	case lndclient.PaymentStateFailed:
		return PaymentFailed
	default:
		return PaymentInFlight
	}
}
