package cmd

import (
	"github.com/spf13/cobra"

	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/platform"
	"github.com/opencall/opencall/internal/ux"
)

func newPaymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "payments",
		Aliases: []string{"pay"},
		Short:   "Pay for bookings",
	}

	create := &cobra.Command{
		Use:   "create BOOKING_ID",
		Short: "Create the payment order of a pending booking",
		Long: `Create the Razorpay order for a pending booking. Complete the payment
with the returned order ID, then confirm it with 'opencall payments verify'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			p, err := a.platform.CreatePayment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f := ux.Fields{Title: "Payment created"}
			f.Add("Payment ID", p.PaymentID)
			f.Add("Order ID", p.RazorpayOrderID)
			f.Add("Amount", formatPrice(p.Amount, p.Currency))
			return a.print(ux.Result{Data: p, View: f})
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Confirm a completed payment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			var req platform.VerifyPaymentRequest
			req.PaymentID, _ = cmd.Flags().GetString("payment")
			req.RazorpayPaymentID, _ = cmd.Flags().GetString("razorpay-payment")
			req.RazorpaySignature, _ = cmd.Flags().GetString("signature")
			if err := missingFlags(map[string]string{
				"payment":          req.PaymentID,
				"razorpay-payment": req.RazorpayPaymentID,
				"signature":        req.RazorpaySignature,
			}); err != nil {
				return err
			}

			res, err := a.platform.VerifyPayment(cmd.Context(), req)
			if err != nil {
				return err
			}
			if res.Status != platform.PaymentPaid {
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "payment not confirmed: status "+res.Status).
					WithSuggestion("Check the Razorpay payment ID and signature")
			}
			return a.print(ux.Result{Data: res, View: "Payment confirmed. Your booking is now confirmed."})
		},
	}
	verify.Flags().String("payment", "", "payment ID returned by 'payments create'")
	verify.Flags().String("razorpay-payment", "", "Razorpay payment ID")
	verify.Flags().String("signature", "", "Razorpay signature")

	cmd.AddCommand(create, verify)
	return cmd
}
