package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func TestDeclineReason(t *testing.T) {
	cases := []struct {
		name string
		serr *stripe.Error
		want string
	}{
		{"nil error", nil, "payment could not be processed"},
		{"insufficient funds", &stripe.Error{DeclineCode: stripe.DeclineCodeInsufficientFunds}, "the card has insufficient funds"},
		{"expired card", &stripe.Error{Code: stripe.ErrorCodeExpiredCard}, "the card has expired"},
		{"generic decline", &stripe.Error{Code: stripe.ErrorCodeCardDeclined}, "the card was declined"},
		{"needs authentication", &stripe.Error{Code: stripe.ErrorCodeAuthenticationRequired}, "the payment requires additional authentication"},
		{"unknown code", &stripe.Error{Code: "processing_error"}, "payment could not be processed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeclineReason(tc.serr))
		})
	}
}
