package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homeledger/internal/apperr"
	"homeledger/internal/infrastructure/lock"
	"homeledger/internal/model"
	"homeledger/internal/repository"
	"homeledger/pkg/amortization"
	"homeledger/pkg/calendar"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LoanService owns the loan lifecycle: ACTIVE until the outstanding
// principal reaches zero, then CLOSED.
type LoanService struct {
	uow    *repository.UnitOfWorkFactory
	loans  *repository.LoanRepository
	ledger *LedgerService
	locker lock.Locker
	log    *logrus.Logger
	now    func() time.Time
}

func NewLoanService(db *gorm.DB, uow *repository.UnitOfWorkFactory, ledger *LedgerService, locker lock.Locker, log *logrus.Logger, opts ...Option) *LoanService {
	o := buildOptions(opts)
	return &LoanService{
		uow:    uow,
		loans:  repository.NewLoanRepository(db),
		ledger: ledger,
		locker: locker,
		log:    log,
		now:    o.now,
	}
}

func calcError(err error) error {
	switch {
	case errors.Is(err, amortization.ErrInvalidInput):
		return apperr.Validation("%v", err)
	case errors.Is(err, amortization.ErrNonConvergent):
		return apperr.Validation("%v", err)
	}
	return err
}

func toEMIs(loanID string, rows []amortization.Row) []*model.LoanEMI {
	emis := make([]*model.LoanEMI, len(rows))
	for i, row := range rows {
		emis[i] = &model.LoanEMI{
			ID:                 uuid.NewString(),
			LoanID:             loanID,
			EMINumber:          row.EMINumber,
			DueDate:            row.DueDate,
			PrincipalComponent: row.PrincipalComponent,
			InterestComponent:  row.InterestComponent,
			TotalAmount:        row.TotalAmount,
			Status:             model.EMIStatusPending,
		}
	}
	return emis
}

// Originate creates the loan and its full PENDING schedule.
func (s *LoanService) Originate(ctx context.Context, householdID string, req *OriginateLoanRequest) (*model.Loan, []*model.LoanEMI, error) {
	if req.LinkedAccountID == "" {
		return nil, nil, apperr.Validation("linked_account_id is required")
	}
	if !amortization.IsMoney(req.Principal) {
		return nil, nil, apperr.Validation("principal %s has more than two decimal places", req.Principal)
	}
	if req.TenureMonths > amortization.MaxRows {
		return nil, nil, apperr.Validation("tenure cannot exceed %d months", amortization.MaxRows)
	}
	if req.StartDate.IsZero() {
		return nil, nil, apperr.Validation("start_date is required")
	}
	start := calendar.DateOnly(req.StartDate)

	emi, err := amortization.LevelPayment(req.Principal, req.InterestRate, req.TenureMonths)
	if err != nil {
		return nil, nil, calcError(err)
	}
	rows, err := amortization.BuildSchedule(req.Principal, req.InterestRate, req.TenureMonths, start)
	if err != nil {
		return nil, nil, calcError(err)
	}

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	if _, err := uow.Accounts.Get(uow.Context(), householdID, req.LinkedAccountID); err != nil {
		return nil, nil, err
	}

	loan := &model.Loan{
		ID:                   uuid.NewString(),
		HouseholdID:          householdID,
		LinkedAccountID:      req.LinkedAccountID,
		Principal:            req.Principal,
		InterestRate:         req.InterestRate,
		TenureMonths:         req.TenureMonths,
		EMIAmount:            emi.Round(2),
		OutstandingPrincipal: req.Principal,
		Status:               model.LoanStatusActive,
		StartDate:            start,
	}
	if err := uow.Loans.Create(uow.Context(), loan); err != nil {
		return nil, nil, fmt.Errorf("create loan: %w", err)
	}
	emis := toEMIs(loan.ID, rows)
	if err := uow.Loans.CreateEMIs(uow.Context(), emis); err != nil {
		return nil, nil, fmt.Errorf("create schedule: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"principal": loan.Principal.String(),
		"emi":       loan.EMIAmount.String(),
		"tenure":    loan.TenureMonths,
	}).Info("loan originated")
	return loan, emis, nil
}

// PayEMI settles one installment from the linked account.
func (s *LoanService) PayEMI(ctx context.Context, householdID, loanID string, emiNumber int) (*model.LoanEMI, *model.Transaction, error) {
	if emiNumber < 1 {
		return nil, nil, apperr.Validation("emi number must be positive")
	}
	loan, err := s.loans.Get(ctx, householdID, loanID)
	if err != nil {
		return nil, nil, err
	}

	release, err := acquire(ctx, s.locker, loanKey(loanID), accountKey(loan.LinkedAccountID))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()
	uctx := uow.Context()

	loan, err = uow.Loans.GetForUpdate(uctx, householdID, loanID)
	if err != nil {
		return nil, nil, err
	}
	emi, err := uow.Loans.GetEMI(uctx, loanID, emiNumber)
	if err != nil {
		return nil, nil, err
	}
	if emi.Status == model.EMIStatusPaid {
		return nil, nil, apperr.Conflict("emi %d of loan %s already paid", emiNumber, loanID)
	}
	if loan.Status == model.LoanStatusClosed {
		return nil, nil, apperr.Conflict("loan %s is closed", loanID)
	}

	category, err := uow.Categories.Ensure(uctx, householdID, model.LoanRepaymentCategory, model.TransactionKindExpense)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure category: %w", err)
	}

	now := s.now()
	trans, err := s.ledger.PostInUnit(uow, householdID, &PostTransactionRequest{
		AccountID:   loan.LinkedAccountID,
		Kind:        model.TransactionKindExpense,
		Amount:      emi.TotalAmount,
		CategoryID:  &category.ID,
		Date:        now,
		Description: fmt.Sprintf("EMI %d of loan %s", emi.EMINumber, loan.ID),
	})
	if err != nil {
		return nil, nil, err
	}

	emi.PaidDate = &now
	emi.TransactionID = &trans.ID
	if err := uow.Loans.MarkEMIPaid(uctx, emi); err != nil {
		return nil, nil, err
	}

	outstanding := loan.OutstandingPrincipal.Sub(emi.PrincipalComponent)
	if outstanding.IsNegative() {
		return nil, nil, fmt.Errorf("loan %s: emi %d principal %s exceeds outstanding %s",
			loan.ID, emi.EMINumber, emi.PrincipalComponent, loan.OutstandingPrincipal)
	}
	loan.OutstandingPrincipal = outstanding
	if loan.OutstandingPrincipal.IsZero() {
		loan.Status = model.LoanStatusClosed
	}
	if err := uow.Loans.UpdateBalance(uctx, loan); err != nil {
		return nil, nil, fmt.Errorf("update loan: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"emi_number":  emi.EMINumber,
		"outstanding": loan.OutstandingPrincipal.String(),
		"status":      loan.Status,
	}).Info("emi paid")
	return emi, trans, nil
}

// Prepay lowers the outstanding principal and regenerates the PENDING tail
// of the schedule. PAID rows are never touched; regenerated rows continue
// the numbering from the first pending installment.
func (s *LoanService) Prepay(ctx context.Context, householdID string, req *PrepayLoanRequest) (*model.Loan, []*model.LoanEMI, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, apperr.Validation("amount must be greater than zero")
	}
	if !amortization.IsMoney(req.Amount) {
		return nil, nil, apperr.Validation("amount %s has more than two decimal places", req.Amount)
	}
	if !req.Strategy.Valid() {
		return nil, nil, apperr.Validation("unknown prepayment strategy %q", req.Strategy)
	}

	release, err := acquire(ctx, s.locker, loanKey(req.LoanID))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()
	uctx := uow.Context()

	loan, err := uow.Loans.GetForUpdate(uctx, householdID, req.LoanID)
	if err != nil {
		return nil, nil, err
	}
	if loan.Status == model.LoanStatusClosed {
		return nil, nil, apperr.Conflict("loan %s is closed", loan.ID)
	}
	if req.Amount.GreaterThan(loan.OutstandingPrincipal) {
		return nil, nil, apperr.LimitExceeded("prepayment %s exceeds outstanding principal %s",
			req.Amount.String(), loan.OutstandingPrincipal.String())
	}

	schedule, err := uow.Loans.ListEMIs(uctx, loan.ID)
	if err != nil {
		return nil, nil, err
	}
	var pending []*model.LoanEMI
	paid := make(map[int]bool)
	for _, e := range schedule {
		if e.Status == model.EMIStatusPaid {
			paid[e.EMINumber] = true
		} else {
			pending = append(pending, e)
		}
	}
	firstNumber := 1
	if len(pending) > 0 {
		firstNumber = pending[0].EMINumber
	} else if len(schedule) > 0 {
		firstNumber = schedule[len(schedule)-1].EMINumber + 1
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}
	prepayment := &model.LoanPrepayment{
		ID:       uuid.NewString(),
		LoanID:   loan.ID,
		Amount:   req.Amount,
		Date:     date.UTC(),
		Strategy: req.Strategy,
	}
	if err := uow.Loans.CreatePrepayment(uctx, prepayment); err != nil {
		return nil, nil, fmt.Errorf("record prepayment: %w", err)
	}

	remaining := loan.OutstandingPrincipal.Sub(req.Amount)
	var rows []amortization.Row
	if remaining.IsPositive() {
		switch req.Strategy {
		case model.PrepaymentReduceTenure:
			rows, err = amortization.ReduceTenure(remaining, loan.InterestRate, loan.EMIAmount, loan.StartDate, firstNumber)
		case model.PrepaymentReduceEMI:
			count := len(pending)
			if count == 0 {
				count = 1
			}
			var emi decimal.Decimal
			emi, rows, err = amortization.ReduceEMI(remaining, loan.InterestRate, count, loan.StartDate, firstNumber)
			if err == nil {
				loan.EMIAmount = emi.Round(2)
			}
		}
		if err != nil {
			return nil, nil, calcError(err)
		}
		skipPaid(rows, paid, loan.StartDate)
	}

	if err := uow.Loans.DeletePendingEMIs(uctx, loan.ID); err != nil {
		return nil, nil, fmt.Errorf("drop pending schedule: %w", err)
	}
	emis := toEMIs(loan.ID, rows)
	if err := uow.Loans.CreateEMIs(uctx, emis); err != nil {
		return nil, nil, fmt.Errorf("write regenerated schedule: %w", err)
	}

	loan.OutstandingPrincipal = remaining
	if remaining.IsZero() {
		loan.Status = model.LoanStatusClosed
	}
	if err := uow.Loans.UpdateBalance(uctx, loan); err != nil {
		return nil, nil, fmt.Errorf("update loan: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"amount":      req.Amount.String(),
		"strategy":    req.Strategy,
		"pending":     len(emis),
		"emi":         loan.EMIAmount.String(),
		"outstanding": loan.OutstandingPrincipal.String(),
	}).Info("loan prepaid")
	return loan, emis, nil
}

func (s *LoanService) GetLoan(ctx context.Context, householdID, id string) (*model.Loan, error) {
	return s.loans.Get(ctx, householdID, id)
}

func (s *LoanService) ListSchedule(ctx context.Context, householdID, loanID string) ([]*model.LoanEMI, error) {
	if _, err := s.loans.Get(ctx, householdID, loanID); err != nil {
		return nil, err
	}
	return s.loans.ListEMIs(ctx, loanID)
}

func (s *LoanService) ListPrepayments(ctx context.Context, householdID, loanID string) ([]*model.LoanPrepayment, error) {
	if _, err := s.loans.Get(ctx, householdID, loanID); err != nil {
		return nil, err
	}
	return s.loans.ListPrepayments(ctx, loanID)
}

// skipPaid renumbers regenerated rows past installments that were settled
// out of order, keeping numbers unique and continuous. Due dates follow the
// new numbers.
func skipPaid(rows []amortization.Row, paid map[int]bool, start time.Time) {
	if len(rows) == 0 {
		return
	}
	n := rows[0].EMINumber
	for i := range rows {
		for paid[n] {
			n++
		}
		rows[i].EMINumber = n
		rows[i].DueDate = calendar.AddMonths(start, n)
		n++
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
