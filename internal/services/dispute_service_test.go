package services

import (
	"testing"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func TestPlanRefund(t *testing.T) {
	payment := func(gross, refunded int64) *models.Payment {
		return &models.Payment{AmountGrossCents: gross, RefundedAmountCents: refunded, Status: models.PaymentHeld}
	}

	tests := []struct {
		name        string
		payment     *models.Payment
		action      models.DisputeAction
		amountCents *int64
		want        refundPlan
		wantKind    apperr.Kind
	}{
		{
			name:    "full refund takes the whole remaining balance",
			payment: payment(10000, 0),
			action:  models.DisputeFullRefund,
			want: refundPlan{
				refundCents:   10000,
				paymentStatus: models.PaymentRefunded,
				bookingStatus: models.BookingRefunded,
			},
		},
		{
			name:    "full refund after a partial takes what is left",
			payment: payment(10000, 3000),
			action:  models.DisputeFullRefund,
			want: refundPlan{
				refundCents:   7000,
				paymentStatus: models.PaymentRefunded,
				bookingStatus: models.BookingRefunded,
			},
		},
		{
			name:     "full refund with nothing left",
			payment:  payment(10000, 10000),
			action:   models.DisputeFullRefund,
			wantKind: apperr.KindValidation,
		},
		{
			name:        "partial refund leaves the booking completed",
			payment:     payment(10000, 0),
			action:      models.DisputePartialRefund,
			amountCents: int64Ptr(4000),
			want: refundPlan{
				refundCents:   4000,
				paymentStatus: models.PaymentPartiallyRefunded,
				bookingStatus: models.BookingCompleted,
			},
		},
		{
			name:        "partial refund emptying the balance is a full refund",
			payment:     payment(10000, 6000),
			action:      models.DisputePartialRefund,
			amountCents: int64Ptr(4000),
			want: refundPlan{
				refundCents:   4000,
				paymentStatus: models.PaymentRefunded,
				bookingStatus: models.BookingRefunded,
			},
		},
		{
			name:        "partial refund over the remaining balance",
			payment:     payment(10000, 6000),
			action:      models.DisputePartialRefund,
			amountCents: int64Ptr(5000),
			wantKind:    apperr.KindValidation,
		},
		{
			name:        "partial refund needs a positive amount",
			payment:     payment(10000, 0),
			action:      models.DisputePartialRefund,
			amountCents: int64Ptr(0),
			wantKind:    apperr.KindValidation,
		},
		{
			name:     "partial refund needs an amount",
			payment:  payment(10000, 0),
			action:   models.DisputePartialRefund,
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planRefund(tt.payment, tt.action, tt.amountCents)
			if tt.wantKind != "" {
				if kind := apperr.KindOf(err); kind != tt.wantKind {
					t.Fatalf("expected %s error, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if plan != tt.want {
				t.Errorf("planRefund = %+v, want %+v", plan, tt.want)
			}
		})
	}
}
