package platform

import "context"

// Payment statuses
const (
	PaymentCreated = "created"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// CreatePaymentRequest opens a payment for a booking
type CreatePaymentRequest struct {
	BookingID string `json:"booking_id" yaml:"booking_id"`
}

// Payment is a gateway order to be completed by the user. Amount is in
// the currency's minor unit.
type Payment struct {
	PaymentID       string `json:"payment_id" yaml:"payment_id"`
	RazorpayOrderID string `json:"razorpay_order_id" yaml:"razorpay_order_id"`
	Amount          int64  `json:"amount" yaml:"amount"`
	Currency        string `json:"currency" yaml:"currency"`
}

// VerifyPaymentRequest confirms a completed gateway payment
type VerifyPaymentRequest struct {
	PaymentID         string `json:"payment_id" yaml:"payment_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id" yaml:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature" yaml:"razorpay_signature"`
}

// PaymentVerification is the verified payment status
type PaymentVerification struct {
	Status string `json:"status" yaml:"status"`
}

// CreatePayment opens a payment for bookingID
func (c *Client) CreatePayment(ctx context.Context, bookingID string) (*Payment, error) {
	out, err := post[Payment](ctx, c, "/payments", CreatePaymentRequest{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment confirms a completed payment with the gateway signature
func (c *Client) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*PaymentVerification, error) {
	out, err := post[PaymentVerification](ctx, c, "/payments/verify", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
