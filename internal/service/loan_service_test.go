package service

import (
	"context"
	"sync"
	"testing"

	"homeledger/internal/apperr"
	"homeledger/internal/model"

	"github.com/shopspring/decimal"
)

func originate(t *testing.T, env *testEnv, accountID string) (*model.Loan, []*model.LoanEMI) {
	t.Helper()
	loan, emis, err := env.loans.Originate(context.Background(), env.hh, &OriginateLoanRequest{
		LinkedAccountID: accountID,
		Principal:       dec("120000"),
		InterestRate:    dec("12"),
		TenureMonths:    12,
		StartDate:       date(2024, 1, 15),
	})
	if err != nil {
		t.Fatalf("Originate: %v", err)
	}
	return loan, emis
}

func pendingSchedule(t *testing.T, env *testEnv, loanID string) []*model.LoanEMI {
	t.Helper()
	all, err := env.loans.ListSchedule(context.Background(), env.hh, loanID)
	if err != nil {
		t.Fatalf("ListSchedule: %v", err)
	}
	var pending []*model.LoanEMI
	for _, e := range all {
		if e.Status == model.EMIStatusPending {
			pending = append(pending, e)
		}
	}
	return pending
}

func principalSum(emis []*model.LoanEMI) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range emis {
		sum = sum.Add(e.PrincipalComponent)
	}
	return sum
}

func TestOriginateBuildsSchedule(t *testing.T) {
	env := newTestEnv(t)
	acc := env.account(t, model.AccountKindBank)
	loan, emis := originate(t, env, acc.ID)

	assertDecimal(t, "emi", loan.EMIAmount, "10661.85")
	if loan.Status != model.LoanStatusActive {
		t.Errorf("status = %s", loan.Status)
	}
	if len(emis) != 12 {
		t.Fatalf("schedule rows = %d, want 12", len(emis))
	}
	assertDecimal(t, "principal sum", principalSum(emis), "120000")
	if got := emis[0].DueDate; !got.Equal(date(2024, 2, 15)) {
		t.Errorf("first due date = %s", got)
	}
	for i, e := range emis {
		if e.EMINumber != i+1 || e.Status != model.EMIStatusPending {
			t.Errorf("row %d: number %d status %s", i, e.EMINumber, e.Status)
		}
	}
}

func TestOriginateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)

	base := OriginateLoanRequest{
		LinkedAccountID: acc.ID,
		Principal:       dec("1000"),
		InterestRate:    dec("10"),
		TenureMonths:    12,
		StartDate:       date(2024, 1, 1),
	}
	zero := base
	zero.Principal = decimal.Zero
	long := base
	long.TenureMonths = 361
	negRate := base
	negRate.InterestRate = dec("-1")

	for name, req := range map[string]OriginateLoanRequest{"zero principal": zero, "tenure": long, "negative rate": negRate} {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.loans.Originate(ctx, env.hh, &req)
			assertKind(t, err, apperr.ErrValidation)
		})
	}

	foreign := base
	_, _, err := env.loans.Originate(ctx, "household-2", &foreign)
	assertKind(t, err, apperr.ErrNotFound)
}

func TestPayEMI(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "50000")
	loan, emis := originate(t, env, acc.ID)

	emi, trans, err := env.loans.PayEMI(ctx, env.hh, loan.ID, 1)
	if err != nil {
		t.Fatalf("PayEMI: %v", err)
	}
	if emi.Status != model.EMIStatusPaid || emi.TransactionID == nil || *emi.TransactionID != trans.ID {
		t.Errorf("emi not settled: %+v", emi)
	}
	if trans.Kind != model.TransactionKindExpense || trans.CategoryID == nil {
		t.Errorf("transaction = %+v", trans)
	}
	assertDecimal(t, "balance", env.balance(t, acc.ID), decimal.NewFromInt(50000).Sub(emis[0].TotalAmount).StringFixed(2))

	got, err := env.loans.GetLoan(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "outstanding", got.OutstandingPrincipal, dec("120000").Sub(emis[0].PrincipalComponent).StringFixed(2))

	// a paid installment cannot be paid again and nothing is posted
	before := env.transactionCount(t, acc.ID)
	balance := env.balance(t, acc.ID)
	_, _, err = env.loans.PayEMI(ctx, env.hh, loan.ID, 1)
	assertKind(t, err, apperr.ErrConflict)
	if env.transactionCount(t, acc.ID) != before || !env.balance(t, acc.ID).Equal(balance) {
		t.Error("rejected payment changed the ledger")
	}

	// the settling transaction is pinned
	assertKind(t, env.ledger.Reverse(ctx, env.hh, trans.ID), apperr.ErrConflict)

	_, _, err = env.loans.PayEMI(ctx, env.hh, loan.ID, 99)
	assertKind(t, err, apperr.ErrNotFound)
}

func TestPayAllEMIsClosesLoan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "200000")
	loan, _ := originate(t, env, acc.ID)

	for n := 1; n <= 12; n++ {
		if _, _, err := env.loans.PayEMI(ctx, env.hh, loan.ID, n); err != nil {
			t.Fatalf("PayEMI %d: %v", n, err)
		}
	}
	got, err := env.loans.GetLoan(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.LoanStatusClosed || !got.OutstandingPrincipal.IsZero() {
		t.Errorf("loan = %s outstanding %s", got.Status, got.OutstandingPrincipal)
	}
}

func TestPrepayReduceTenure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "50000")
	loan, _ := originate(t, env, acc.ID)
	if _, _, err := env.loans.PayEMI(ctx, env.hh, loan.ID, 1); err != nil {
		t.Fatal(err)
	}
	before := len(pendingSchedule(t, env, loan.ID))
	balance := env.balance(t, acc.ID)

	updated, regenerated, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{
		LoanID:   loan.ID,
		Amount:   dec("20000"),
		Strategy: model.PrepaymentReduceTenure,
	})
	if err != nil {
		t.Fatalf("Prepay: %v", err)
	}
	pending := pendingSchedule(t, env, loan.ID)
	if len(pending) >= before {
		t.Errorf("pending count %d, want fewer than %d", len(pending), before)
	}
	if len(pending) != len(regenerated) {
		t.Errorf("returned %d rows, stored %d", len(regenerated), len(pending))
	}
	assertDecimal(t, "emi", updated.EMIAmount, "10661.85")
	if updated.TenureMonths != 12 {
		t.Errorf("tenure = %d, want unchanged 12", updated.TenureMonths)
	}
	if pending[0].EMINumber != 2 {
		t.Errorf("regenerated numbering starts at %d, want 2", pending[0].EMINumber)
	}
	assertDecimal(t, "pending principal", principalSum(pending), updated.OutstandingPrincipal.StringFixed(2))

	// paid history is untouched
	all, _ := env.loans.ListSchedule(ctx, env.hh, loan.ID)
	if all[0].EMINumber != 1 || all[0].Status != model.EMIStatusPaid {
		t.Errorf("first row = %d %s", all[0].EMINumber, all[0].Status)
	}
	// a prepayment moves no money through the ledger
	if !env.balance(t, acc.ID).Equal(balance) {
		t.Error("prepay changed the linked account balance")
	}
	prepayments, err := env.loans.ListPrepayments(ctx, env.hh, loan.ID)
	if err != nil || len(prepayments) != 1 {
		t.Fatalf("prepayments = %d, %v", len(prepayments), err)
	}
}

func TestPrepayReduceEMI(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	loan, _ := originate(t, env, acc.ID)

	updated, _, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{
		LoanID:   loan.ID,
		Amount:   dec("20000"),
		Strategy: model.PrepaymentReduceEMI,
	})
	if err != nil {
		t.Fatalf("Prepay: %v", err)
	}
	pending := pendingSchedule(t, env, loan.ID)
	if len(pending) != 12 {
		t.Errorf("pending count = %d, want 12", len(pending))
	}
	if !updated.EMIAmount.LessThan(loan.EMIAmount) {
		t.Errorf("emi %s not below %s", updated.EMIAmount, loan.EMIAmount)
	}
	assertDecimal(t, "outstanding", updated.OutstandingPrincipal, "100000")
	assertDecimal(t, "pending principal", principalSum(pending), "100000")
}

func TestPrepayLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	loan, _ := originate(t, env, acc.ID)

	_, _, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("120000.01"), Strategy: model.PrepaymentReduceEMI})
	assertKind(t, err, apperr.ErrLimitExceeded)

	_, _, err = env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("10"), Strategy: "SKIP"})
	assertKind(t, err, apperr.ErrValidation)

	closed, rows, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("120000"), Strategy: model.PrepaymentReduceTenure})
	if err != nil {
		t.Fatalf("full prepay: %v", err)
	}
	if closed.Status != model.LoanStatusClosed || len(rows) != 0 || len(pendingSchedule(t, env, loan.ID)) != 0 {
		t.Errorf("loan %s with %d pending rows", closed.Status, len(rows))
	}

	_, _, err = env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("1"), Strategy: model.PrepaymentReduceTenure})
	assertKind(t, err, apperr.ErrConflict)
}

func TestLoanAmountsMustBeWholeCents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)

	_, _, err := env.loans.Originate(ctx, env.hh, &OriginateLoanRequest{
		LinkedAccountID: acc.ID,
		Principal:       dec("1000.004"),
		InterestRate:    decimal.Zero,
		TenureMonths:    2,
		StartDate:       date(2024, 1, 1),
	})
	assertKind(t, err, apperr.ErrValidation)

	loan, _ := originate(t, env, acc.ID)
	_, _, err = env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("100.005"), Strategy: model.PrepaymentReduceEMI})
	assertKind(t, err, apperr.ErrValidation)

	// trailing zeros are still whole cents
	_, _, err = env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("100.000"), Strategy: model.PrepaymentReduceEMI})
	if err != nil {
		t.Fatalf("Prepay 100.000: %v", err)
	}
}

func TestUnevenScheduleClosesLoan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "5000")

	loan, emis, err := env.loans.Originate(ctx, env.hh, &OriginateLoanRequest{
		LinkedAccountID: acc.ID,
		Principal:       dec("1000"),
		InterestRate:    decimal.Zero,
		TenureMonths:    3,
		StartDate:       date(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("Originate: %v", err)
	}
	assertDecimal(t, "last row", emis[2].TotalAmount, "333.34")
	for n := 1; n <= 3; n++ {
		if _, _, err := env.loans.PayEMI(ctx, env.hh, loan.ID, n); err != nil {
			t.Fatalf("PayEMI %d: %v", n, err)
		}
	}
	got, err := env.loans.GetLoan(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.LoanStatusClosed || !got.OutstandingPrincipal.IsZero() {
		t.Errorf("loan = %s outstanding %s", got.Status, got.OutstandingPrincipal)
	}
	assertDecimal(t, "balance", env.balance(t, acc.ID), "4000")
}

func TestScheduleRowsChargeTheEMI(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "50000")
	loan, emis := originate(t, env, acc.ID)

	for _, e := range emis[:len(emis)-1] {
		assertDecimal(t, "row total", e.TotalAmount, "10661.85")
	}
	if _, _, err := env.loans.PayEMI(ctx, env.hh, loan.ID, 1); err != nil {
		t.Fatal(err)
	}
	_, regenerated, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{
		LoanID:   loan.ID,
		Amount:   dec("20000"),
		Strategy: model.PrepaymentReduceTenure,
	})
	if err != nil {
		t.Fatalf("Prepay: %v", err)
	}
	for _, e := range regenerated[:len(regenerated)-1] {
		if !e.TotalAmount.Equal(dec("10661.85")) {
			t.Errorf("emi %d total %s after prepayment, want 10661.85", e.EMINumber, e.TotalAmount)
		}
	}
}

func TestConcurrentPayAndPrepayConserveBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "100000")
	loan, _ := originate(t, env, acc.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for n := 1; n <= 3; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := env.loans.PayEMI(ctx, env.hh, loan.ID, n)
			errs <- err
		}(n)
	}
	for _, strategy := range []model.PrepaymentStrategy{model.PrepaymentReduceTenure, model.PrepaymentReduceEMI, model.PrepaymentReduceTenure} {
		wg.Add(1)
		go func(strategy model.PrepaymentStrategy) {
			defer wg.Done()
			_, _, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{LoanID: loan.ID, Amount: dec("5000"), Strategy: strategy})
			errs <- err
		}(strategy)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent loan operation: %v", err)
		}
	}

	got, err := env.loans.GetLoan(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	all, err := env.loans.ListSchedule(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	prepayments, err := env.loans.ListPrepayments(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(prepayments) != 3 {
		t.Errorf("prepayments = %d, want 3", len(prepayments))
	}

	paid, paidCount := decimal.Zero, 0
	for i, e := range all {
		if e.EMINumber != i+1 {
			t.Errorf("schedule position %d numbered %d", i, e.EMINumber)
		}
		if e.Status == model.EMIStatusPaid {
			paid = paid.Add(e.PrincipalComponent)
			paidCount++
		}
	}
	if paidCount != 3 {
		t.Errorf("paid installments = %d, want 3", paidCount)
	}
	prepaid := decimal.Zero
	for _, p := range prepayments {
		prepaid = prepaid.Add(p.Amount)
	}
	assertDecimal(t, "principal", got.OutstandingPrincipal.Add(paid).Add(prepaid), "120000")
	assertDecimal(t, "pending principal", principalSum(pendingSchedule(t, env, loan.ID)), got.OutstandingPrincipal.StringFixed(2))
}

func TestPrepayAfterOutOfOrderPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.account(t, model.AccountKindBank)
	env.fund(t, acc.ID, "50000")
	loan, _ := originate(t, env, acc.ID)

	for _, n := range []int{1, 3} {
		if _, _, err := env.loans.PayEMI(ctx, env.hh, loan.ID, n); err != nil {
			t.Fatalf("PayEMI %d: %v", n, err)
		}
	}
	_, regenerated, err := env.loans.Prepay(ctx, env.hh, &PrepayLoanRequest{
		LoanID:   loan.ID,
		Amount:   dec("10000"),
		Strategy: model.PrepaymentReduceEMI,
	})
	if err != nil {
		t.Fatalf("Prepay: %v", err)
	}
	if regenerated[0].EMINumber != 2 || regenerated[1].EMINumber != 4 {
		t.Errorf("regenerated numbers start %d, %d; want 2, 4", regenerated[0].EMINumber, regenerated[1].EMINumber)
	}
	if got := regenerated[1].DueDate; !got.Equal(date(2024, 5, 15)) {
		t.Errorf("emi 4 due %s, want 2024-05-15", got)
	}

	all, err := env.loans.ListSchedule(ctx, env.hh, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 12 {
		t.Errorf("schedule rows = %d, want 12", len(all))
	}
	for i, e := range all {
		if e.EMINumber != i+1 {
			t.Errorf("schedule position %d numbered %d", i, e.EMINumber)
		}
	}
}
