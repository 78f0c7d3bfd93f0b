// Package amortization computes level-payment (EMI) amounts and reducing
// balance repayment schedules.
//
// The level payment is computed at full precision. Schedules are then run on a
// balance held in cents: interest is rounded per row and the principal part is
// whatever the rounded payment leaves, so row totals match the payment and the
// principal components always sum to exactly the principal.
package amortization

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"homeledger/pkg/calendar"
)

const (
	// MaxRows caps schedules regenerated with a fixed payment.
	MaxRows = 360
	// moneyPlaces is the storage precision of every emitted amount.
	moneyPlaces = 2
)

var (
	ErrInvalidInput = errors.New("invalid amortization input")
	// ErrNonConvergent is returned when a fixed payment cannot retire the
	// balance within MaxRows, e.g. when it does not even cover the interest.
	ErrNonConvergent = errors.New("payment does not retire the balance")

	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Row is one installment of a schedule.
type Row struct {
	EMINumber          int
	DueDate            time.Time
	PrincipalComponent decimal.Decimal
	InterestComponent  decimal.Decimal
	TotalAmount        decimal.Decimal
	RunningBalance     decimal.Decimal
}

// MonthlyRate converts an annual percentage rate to a monthly fraction.
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(twelve).Div(hundred)
}

// LevelPayment returns P·r·(1+r)^n / ((1+r)^n − 1), or P/n when the rate is zero.
// The result is not rounded.
func LevelPayment(principal, annualRatePercent decimal.Decimal, months int) (decimal.Decimal, error) {
	if err := checkInputs(principal, annualRatePercent, months); err != nil {
		return decimal.Zero, err
	}
	n := decimal.NewFromInt(int64(months))
	if annualRatePercent.IsZero() {
		return principal.Div(n), nil
	}
	r := MonthlyRate(annualRatePercent)
	factor := power(decimal.NewFromInt(1).Add(r), months)
	return principal.Mul(r).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))), nil
}

// BuildSchedule produces the full schedule for a new loan. Row k falls due k
// calendar months after startDate.
func BuildSchedule(principal, annualRatePercent decimal.Decimal, months int, startDate time.Time) ([]Row, error) {
	emi, err := LevelPayment(principal, annualRatePercent, months)
	if err != nil {
		return nil, err
	}
	return generate(principal, MonthlyRate(annualRatePercent), emi, months, startDate, 1, true), nil
}

// ReduceTenure regenerates a schedule that keeps payment fixed and runs for as
// many rows as the balance needs. Rows are numbered from firstNumber and row k
// falls due k months after startDate. The last row may be smaller than payment.
func ReduceTenure(balance, annualRatePercent, payment decimal.Decimal, startDate time.Time, firstNumber int) ([]Row, error) {
	if balance.IsNegative() || annualRatePercent.IsNegative() || !payment.IsPositive() || firstNumber < 1 {
		return nil, fmt.Errorf("%w: balance=%s rate=%s payment=%s first=%d", ErrInvalidInput, balance, annualRatePercent, payment, firstNumber)
	}
	if balance.IsZero() {
		return nil, nil
	}
	r := MonthlyRate(annualRatePercent)
	if payment.LessThanOrEqual(balance.Mul(r)) {
		return nil, fmt.Errorf("%w: payment %s does not cover first interest %s", ErrNonConvergent, payment.StringFixed(moneyPlaces), balance.Mul(r).StringFixed(moneyPlaces))
	}
	rows := generate(balance, r, payment, MaxRows, startDate, firstNumber, false)
	if last := rows[len(rows)-1]; !last.RunningBalance.IsZero() {
		return nil, fmt.Errorf("%w: balance %s left after %d rows", ErrNonConvergent, last.RunningBalance, MaxRows)
	}
	return rows, nil
}

// ReduceEMI keeps the installment count and recomputes the level payment over
// the reduced balance. It returns the new (unrounded) payment and the rows.
func ReduceEMI(balance, annualRatePercent decimal.Decimal, count int, startDate time.Time, firstNumber int) (decimal.Decimal, []Row, error) {
	if firstNumber < 1 {
		return decimal.Zero, nil, fmt.Errorf("%w: first installment number %d", ErrInvalidInput, firstNumber)
	}
	emi, err := LevelPayment(balance, annualRatePercent, count)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return emi, generate(balance, MonthlyRate(annualRatePercent), emi, count, startDate, firstNumber, true), nil
}

// generate runs the reducing-balance recurrence on a balance held in cents.
// Each row charges round(payment) split into the rounded interest on the
// balance and the principal that remains, so every row but the last totals
// exactly the rounded payment. A row whose principal part would overshoot
// takes exactly what is left and ends the schedule. With fixedCount the last
// of maxRows rows also absorbs the remainder.
func generate(principal, r, payment decimal.Decimal, maxRows int, startDate time.Time, firstNumber int, fixedCount bool) []Row {
	rows := make([]Row, 0, min(maxRows, MaxRows))
	balance := principal.Round(moneyPlaces)
	total := payment.Round(moneyPlaces)

	for i := 0; i < maxRows && balance.IsPositive(); i++ {
		interest := balance.Mul(r).Round(moneyPlaces)
		part := total.Sub(interest)
		if part.IsNegative() {
			part = decimal.Zero
		}
		if (fixedCount && i == maxRows-1) || part.GreaterThanOrEqual(balance) {
			part = balance
		}
		balance = balance.Sub(part)

		number := firstNumber + i
		rows = append(rows, Row{
			EMINumber:          number,
			DueDate:            calendar.AddMonths(startDate, number),
			PrincipalComponent: part,
			InterestComponent:  interest,
			TotalAmount:        part.Add(interest),
			RunningBalance:     balance,
		})
	}
	return rows
}

// IsMoney reports whether d fits the two-place storage precision.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyPlaces))
}

func checkInputs(principal, annualRatePercent decimal.Decimal, months int) error {
	switch {
	case !principal.IsPositive():
		return fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidInput, principal)
	case annualRatePercent.IsNegative():
		return fmt.Errorf("%w: rate must not be negative, got %s", ErrInvalidInput, annualRatePercent)
	case months <= 0:
		return fmt.Errorf("%w: months must be positive, got %d", ErrInvalidInput, months)
	}
	return nil
}

// power computes base^n by squaring. Intermediate results are kept at 32
// places, far beyond money precision, to bound the digit growth.
func power(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Truncate(32)
		}
		base = base.Mul(base).Truncate(32)
		n >>= 1
	}
	return result
}
