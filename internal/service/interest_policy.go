package service

import (
	"fmt"

	"homeledger/internal/model"

	"github.com/shopspring/decimal"
)

// InterestPolicy computes the interest added to a statement. prev is the
// previous statement, nil for the first cycle.
type InterestPolicy interface {
	Interest(card *model.CreditCard, prev *model.CreditCardStatement, window StatementWindow) decimal.Decimal
}

// ZeroInterestPolicy charges nothing. It is the default until an accrual
// rule for unpaid balances is agreed.
type ZeroInterestPolicy struct{}

func (ZeroInterestPolicy) Interest(*model.CreditCard, *model.CreditCardStatement, StatementWindow) decimal.Decimal {
	return decimal.Zero
}

// CarriedBalanceInterestPolicy charges the card's monthly rate on whatever
// the previous statement left unpaid.
type CarriedBalanceInterestPolicy struct{}

func (CarriedBalanceInterestPolicy) Interest(card *model.CreditCard, prev *model.CreditCardStatement, _ StatementWindow) decimal.Decimal {
	if prev == nil {
		return decimal.Zero
	}
	unpaid := prev.Remaining()
	if !unpaid.IsPositive() {
		return decimal.Zero
	}
	return unpaid.Mul(card.InterestRateMonthly).Div(decimal.NewFromInt(100)).Round(2)
}

// InterestPolicyByName maps the billing.interest_policy setting to a policy.
func InterestPolicyByName(name string) (InterestPolicy, error) {
	switch name {
	case "", "none":
		return ZeroInterestPolicy{}, nil
	case "carried_balance":
		return CarriedBalanceInterestPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown interest policy %q", name)
}
