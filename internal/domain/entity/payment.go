package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentDetails carries the fields recorded on the APPROVED -> PAID
// transition.
type PaymentDetails struct {
	AmountPaid decimal.Decimal
	Method     string
	Reference  string
	Date       time.Time
	Comment    *string
}
