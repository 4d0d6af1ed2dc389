package lib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

type CaptureState string

const (
	CAPTURE_SUCCEEDED       CaptureState = "succeeded"
	CAPTURE_REQUIRES_ACTION CaptureState = "requires_action"
	CAPTURE_DECLINED        CaptureState = "declined"
)

type CaptureResult struct {
	State           CaptureState
	PaymentIntentID string
	ClientSecret    string
	Reason          string
}

type CaptureParams struct {
	AmountCents          int64
	Currency             string
	CustomerID           string
	PaymentMethodID      string
	DestinationAccountID string
	ApplicationFeeCents  int64
	IdempotencyKey       string
	OffSession           bool
	Metadata             map[string]string
}

// FindOrCreateCustomer resolves the Stripe customer for an email, creating
// one when none exists yet.
func FindOrCreateCustomer(ctx context.Context, email string, name string) (*stripe.Customer, error) {
	sc := GetStripeClient()
	list := sc.V1Customers.List(ctx, &stripe.CustomerListParams{
		Email: stripe.String(email),
	})
	for cus, err := range list {
		if err != nil {
			log.Printf("[Stripe] Error listing customers for %s: %s\n", email, err.Error())
			break
		}
		return cus, nil
	}
	cus, err := sc.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	})
	if err != nil {
		log.Printf("[Stripe] Error creating customer for %s: %s\n", email, err.Error())
		return nil, err
	}
	return cus, nil
}

// AttachPaymentMethod attaches a saved payment method to a customer. A method
// that is already attached to the same customer is not an error.
func AttachPaymentMethod(ctx context.Context, paymentMethodId string, customerId string) error {
	sc := GetStripeClient()
	_, err := sc.V1PaymentMethods.Attach(ctx, paymentMethodId, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerId),
	})
	if err == nil {
		return nil
	}
	pm, perr := sc.V1PaymentMethods.Retrieve(ctx, paymentMethodId, nil)
	if perr == nil && pm.Customer != nil && pm.Customer.ID == customerId {
		return nil
	}
	log.Printf("[Stripe] Error attaching payment method %s: %s\n", paymentMethodId, err.Error())
	return err
}

// CapturePayment creates and confirms a PaymentIntent for the full listing
// price, with the platform cut earmarked as the application fee and the
// remainder routed to the coach's connected account. The idempotency key is
// derived from the request id so a retried accept can never charge twice.
func CapturePayment(ctx context.Context, p *CaptureParams) (*CaptureResult, error) {
	sc := GetStripeClient()
	params := &stripe.PaymentIntentCreateParams{
		Amount:               stripe.Int64(p.AmountCents),
		Currency:             stripe.String(p.Currency),
		Customer:             stripe.String(p.CustomerID),
		PaymentMethod:        stripe.String(p.PaymentMethodID),
		Confirm:              stripe.Bool(true),
		OffSession:           stripe.Bool(p.OffSession),
		ApplicationFeeAmount: stripe.Int64(p.ApplicationFeeCents),
		TransferData: &stripe.PaymentIntentCreateTransferDataParams{
			Destination: stripe.String(p.DestinationAccountID),
		},
		Metadata: p.Metadata,
	}
	if p.IdempotencyKey != "" {
		params.Params = stripe.Params{IdempotencyKey: stripe.String(p.IdempotencyKey)}
	}
	pi, err := sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			if serr.Code == stripe.ErrorCodeAuthenticationRequired && serr.PaymentIntent != nil {
				return &CaptureResult{
					State:           CAPTURE_REQUIRES_ACTION,
					PaymentIntentID: serr.PaymentIntent.ID,
					ClientSecret:    serr.PaymentIntent.ClientSecret,
					Reason:          DeclineReason(serr),
				}, nil
			}
			result := &CaptureResult{
				State:  CAPTURE_DECLINED,
				Reason: DeclineReason(serr),
			}
			if serr.PaymentIntent != nil {
				result.PaymentIntentID = serr.PaymentIntent.ID
			}
			return result, nil
		}
		log.Printf("[Stripe] Error creating PaymentIntent: %s\n", err.Error())
		return nil, err
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &CaptureResult{State: CAPTURE_SUCCEEDED, PaymentIntentID: pi.ID}, nil
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return &CaptureResult{
			State:           CAPTURE_REQUIRES_ACTION,
			PaymentIntentID: pi.ID,
			ClientSecret:    pi.ClientSecret,
		}, nil
	default:
		return &CaptureResult{
			State:           CAPTURE_DECLINED,
			PaymentIntentID: pi.ID,
			Reason:          fmt.Sprintf("payment did not complete (status: %s)", pi.Status),
		}, nil
	}
}

// RetrievePaymentIntent reconciles an ambiguous capture by asking the gateway
// for the actual status.
func RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	sc := GetStripeClient()
	return sc.V1PaymentIntents.Retrieve(ctx, id, nil)
}

// RefundPayment refunds a captured payment in full.
func RefundPayment(ctx context.Context, paymentIntentId string) (*stripe.Refund, error) {
	sc := GetStripeClient()
	refund, err := sc.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentId),
	})
	if err != nil {
		log.Printf("[Stripe] Error refunding PaymentIntent %s: %s\n", paymentIntentId, err.Error())
		return nil, err
	}
	return refund, nil
}

// CreateConnectAccount provisions an express account for a coach so funds can
// be routed to them, plus the onboarding link to finish verification.
func CreateConnectAccount(ctx context.Context, email string, name string, coachId uint) (*stripe.Account, string, error) {
	sc := GetStripeClient()
	acc, err := sc.V1Accounts.Create(ctx, &stripe.AccountCreateParams{
		Type:  stripe.String("express"),
		Email: stripe.String(email),
		BusinessProfile: &stripe.AccountCreateBusinessProfileParams{
			Name: stripe.String(name),
		},
		Metadata: map[string]string{"coachId": fmt.Sprintf("%d", coachId)},
		Capabilities: &stripe.AccountCreateCapabilitiesParams{
			CardPayments: &stripe.AccountCreateCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers: &stripe.AccountCreateCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	})
	if err != nil {
		log.Printf("[Stripe] Error creating account for coach [%d]: %s\n", coachId, err.Error())
		return nil, "", err
	}
	appHost := os.Getenv("APP_HOST")
	accLink, err := sc.V1AccountLinks.Create(ctx, &stripe.AccountLinkCreateParams{
		Account:    stripe.String(acc.ID),
		RefreshURL: stripe.String(fmt.Sprintf("%s/coach/payouts/refresh", appHost)),
		ReturnURL:  stripe.String(fmt.Sprintf("%s/coach/payouts/complete", appHost)),
		Type:       stripe.String("account_onboarding"),
	})
	if err != nil {
		log.Printf("[Stripe] Error creating AccountLink for coach [%d]: %s\n", coachId, err.Error())
		return acc, "", err
	}
	return acc, accLink.URL, nil
}

// DeclineReason maps gateway error codes to the human-readable reason posted
// into the conversation. The athlete is never left wondering whether they
// were charged.
func DeclineReason(serr *stripe.Error) string {
	if serr == nil {
		return "payment could not be processed"
	}
	switch {
	case serr.DeclineCode == stripe.DeclineCodeInsufficientFunds:
		return "the card has insufficient funds"
	case serr.DeclineCode == stripe.DeclineCodeExpiredCard || serr.Code == stripe.ErrorCodeExpiredCard:
		return "the card has expired"
	case serr.Code == stripe.ErrorCodeCardDeclined:
		return "the card was declined"
	case serr.Code == stripe.ErrorCodeAuthenticationRequired:
		return "the payment requires additional authentication"
	default:
		return "payment could not be processed"
	}
}
