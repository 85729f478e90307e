// Package escrow wraps the payment provider. Every method is a single remote
// side effect with no local retry; callers guard idempotency through their own
// status checks before calling.
package escrow

import (
	"context"
	"strings"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Client is the provider contract the services depend on.
type Client interface {
	// Authorize reserves funds with manual capture and returns the intent ref.
	Authorize(ctx context.Context, amountCents int64, customerRef string, metadata map[string]any) (string, error)
	// Capture settles a previously authorized intent.
	Capture(ctx context.Context, intentRef string) error
	// CancelAuthorization voids an authorization. Already-reversed or
	// not-capturable intents are treated as success.
	CancelAuthorization(ctx context.Context, intentRef string) error
	// Refund returns funds against a payment. A nil amount refunds the full
	// remaining balance.
	Refund(ctx context.Context, intentRef string, amountCents *int64) (string, error)
	// Transfer moves settled funds to a destination account. sourceChargeRef,
	// when non-empty, scopes the transfer to the settled charge it draws from.
	Transfer(ctx context.Context, amountCents int64, destination, groupKey string, metadata map[string]any, sourceChargeRef string) (string, error)
	// SettledCharge resolves the settled (captured) charge behind an intent.
	SettledCharge(ctx context.Context, intentRef string) (string, error)
}

const currency = "thb"

// OmiseClient implements Client over the Omise API.
type OmiseClient struct {
	api *omise.Client
}

func NewOmiseClient(api *omise.Client) *OmiseClient {
	return &OmiseClient{api: api}
}

func (c *OmiseClient) Authorize(
	ctx context.Context,
	amountCents int64,
	customerRef string,
	metadata map[string]any,
) (string, error) {
	charge := &omise.Charge{}
	err := c.api.Do(charge, &operations.CreateCharge{
		Customer:    customerRef,
		Amount:      amountCents,
		Currency:    currency,
		DontCapture: true,
		Metadata:    metadata,
	})
	if err != nil {
		return "", apperr.ExternalCall("authorize charge", err)
	}
	return charge.ID, nil
}

func (c *OmiseClient) Capture(ctx context.Context, intentRef string) error {
	charge := &omise.Charge{}
	if err := c.api.Do(charge, &operations.CaptureCharge{ChargeID: intentRef}); err != nil {
		return apperr.ExternalCall("capture charge", err)
	}
	return nil
}

func (c *OmiseClient) CancelAuthorization(ctx context.Context, intentRef string) error {
	charge := &omise.Charge{}
	err := c.api.Do(charge, &operations.ReverseCharge{ChargeID: intentRef})
	if err != nil {
		if alreadyNotCapturable(err) {
			return nil
		}
		return apperr.ExternalCall("reverse charge", err)
	}
	return nil
}

func (c *OmiseClient) Refund(ctx context.Context, intentRef string, amountCents *int64) (string, error) {
	charge := &omise.Charge{}
	if err := c.api.Do(charge, &operations.RetrieveCharge{ChargeID: intentRef}); err != nil {
		return "", apperr.ExternalCall("retrieve charge for refund", err)
	}

	amount := charge.Amount - charge.RefundedAmount
	if amountCents != nil {
		amount = *amountCents
	}

	refund := &omise.Refund{}
	err := c.api.Do(refund, &operations.CreateRefund{
		ChargeID: intentRef,
		Amount:   amount,
	})
	if err != nil {
		return "", apperr.ExternalCall("create refund", err)
	}
	return refund.ID, nil
}

func (c *OmiseClient) Transfer(
	ctx context.Context,
	amountCents int64,
	destination string,
	groupKey string,
	metadata map[string]any,
	sourceChargeRef string,
) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["transfer_group"] = groupKey
	if sourceChargeRef != "" {
		metadata["source_charge"] = sourceChargeRef
	}

	transfer := &omise.Transfer{}
	err := c.api.Do(transfer, &operations.CreateTransfer{
		Amount:    amountCents,
		Recipient: destination,
		Metadata:  metadata,
	})
	if err != nil {
		return "", apperr.ExternalCall("create transfer", err)
	}
	return transfer.ID, nil
}

func (c *OmiseClient) SettledCharge(ctx context.Context, intentRef string) (string, error) {
	charge := &omise.Charge{}
	if err := c.api.Do(charge, &operations.RetrieveCharge{ChargeID: intentRef}); err != nil {
		return "", apperr.ExternalCall("retrieve charge", err)
	}
	if !charge.Paid {
		return "", apperr.Conflict("charge not settled")
	}
	return charge.ID, nil
}

// alreadyNotCapturable matches provider rejections for reversing a charge
// that is no longer capturable (already reversed, expired or captured by a
// racing call). Those count as success for cancellation.
func alreadyNotCapturable(err error) bool {
	var omiseErr *omise.Error
	if e, ok := err.(*omise.Error); ok {
		omiseErr = e
	}
	if omiseErr == nil {
		return false
	}
	if omiseErr.Code == "failed_reverse" || omiseErr.Code == "charge_already_reversed" {
		return true
	}
	return strings.Contains(omiseErr.Message, "not capturable")
}
