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
	"homeledger/pkg/calendar"
	"homeledger/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// StatementWindow is one billing cycle, both ends inclusive.
type StatementWindow struct {
	Start time.Time
	End   time.Time
}

// BillingWindow returns the cycle that closed most recently on or before
// asOf. A cycle ends on the billing day (clamped in short months) and starts
// the day after the previous cycle ended, so consecutive cycles tile.
func BillingWindow(billingDay int, asOf time.Time) StatementWindow {
	end := calendar.OccurrenceOnOrBefore(billingDay, asOf)
	prevEnd := calendar.OccurrenceOnOrBefore(billingDay, end.AddDate(0, 0, -1))
	return StatementWindow{Start: prevEnd.AddDate(0, 0, 1), End: end}
}

// CreditCardService manages cards, their statements and payments.
// Statements go OPEN -> PAID or OPEN -> OVERDUE -> PAID.
type CreditCardService struct {
	uow        *repository.UnitOfWorkFactory
	cards      *repository.CreditCardRepository
	statements *repository.StatementRepository
	ledger     *LedgerService
	locker     lock.Locker
	interest   InterestPolicy
	log        *logrus.Logger
}

func NewCreditCardService(db *gorm.DB, uow *repository.UnitOfWorkFactory, ledger *LedgerService, locker lock.Locker, log *logrus.Logger, opts ...Option) *CreditCardService {
	o := buildOptions(opts)
	return &CreditCardService{
		uow:        uow,
		cards:      repository.NewCreditCardRepository(db),
		statements: repository.NewStatementRepository(db),
		ledger:     ledger,
		locker:     locker,
		interest:   o.interest,
		log:        log,
	}
}

func (s *CreditCardService) CreateCard(ctx context.Context, householdID string, req *CreateCreditCardRequest) (*model.CreditCard, error) {
	switch {
	case req.AccountID == "":
		return nil, apperr.Validation("account_id is required")
	case !req.CreditLimit.IsPositive():
		return nil, apperr.Validation("credit_limit must be greater than zero")
	case req.BillingCycleStartDay < 1 || req.BillingCycleStartDay > 31:
		return nil, apperr.Validation("billing_cycle_start_day must be between 1 and 31")
	case req.DueDays < 0:
		return nil, apperr.Validation("due_days cannot be negative")
	case req.InterestRateMonthly.IsNegative():
		return nil, apperr.Validation("interest_rate_monthly cannot be negative")
	case req.MinimumDuePercent.IsNegative() || req.MinimumDuePercent.GreaterThan(hundred):
		return nil, apperr.Validation("minimum_due_percent must be between 0 and 100")
	}

	release, err := acquire(ctx, s.locker, accountKey(req.AccountID))
	if err != nil {
		return nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	uctx := uow.Context()

	account, err := uow.Accounts.GetForUpdate(uctx, householdID, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Kind != model.AccountKindCreditCard {
		return nil, apperr.Validation("account %s is %s, not CREDIT_CARD", account.ID, account.Kind)
	}
	existing, err := uow.CreditCards.FindByAccount(uctx, account.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("account %s already backs card %s", account.ID, existing.ID)
	}

	card := &model.CreditCard{
		ID:                   uuid.NewString(),
		HouseholdID:          householdID,
		AccountID:            account.ID,
		CreditLimit:          req.CreditLimit,
		BillingCycleStartDay: req.BillingCycleStartDay,
		DueDays:              req.DueDays,
		InterestRateMonthly:  req.InterestRateMonthly,
		MinimumDuePercent:    req.MinimumDuePercent,
		OutstandingAmount:    decimal.Zero,
		Status:               model.CardStatusActive,
	}
	if err := uow.CreditCards.Create(uctx, card); err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "account_id": card.AccountID}).Info("credit card created")
	return card, nil
}

// Charge posts a purchase on the card's account.
func (s *CreditCardService) Charge(ctx context.Context, householdID string, req *ChargeRequest) (*model.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}
	card, err := s.cards.Get(ctx, householdID, req.CardID)
	if err != nil {
		return nil, err
	}

	release, err := acquire(ctx, s.locker, cardKey(card.ID), accountKey(card.AccountID))
	if err != nil {
		return nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	card, err = uow.CreditCards.GetForUpdate(uow.Context(), householdID, req.CardID)
	if err != nil {
		return nil, err
	}
	if card.Status != model.CardStatusActive {
		return nil, apperr.Conflict("card %s is %s", card.ID, card.Status)
	}
	if card.OutstandingAmount.Add(req.Amount).GreaterThan(card.CreditLimit) {
		return nil, apperr.LimitExceeded("charge of %s exceeds credit limit %s (outstanding %s)",
			req.Amount.String(), card.CreditLimit.String(), card.OutstandingAmount.String())
	}

	trans, err := s.ledger.PostInUnit(uow, householdID, &PostTransactionRequest{
		AccountID:   card.AccountID,
		Kind:        model.TransactionKindExpense,
		Amount:      req.Amount,
		CategoryID:  req.CategoryID,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "amount": req.Amount.String()}).Info("card charged")
	return trans, nil
}

// ApplyPayment moves money from a source account onto the card and books it
// against the oldest unpaid statement. A statement turns PAID once the
// payments booked against it cover its closing balance; any excess is not
// carried to the next statement.
func (s *CreditCardService) ApplyPayment(ctx context.Context, householdID string, req *ApplyPaymentRequest) (*model.CreditCardPayment, error) {
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}
	if req.SourceAccountID == "" {
		return nil, apperr.Validation("source_account_id is required")
	}
	if req.PaymentType != nil && !req.PaymentType.Valid() {
		return nil, apperr.Validation("unknown payment type %q", *req.PaymentType)
	}
	card, err := s.cards.Get(ctx, householdID, req.CardID)
	if err != nil {
		return nil, err
	}
	if card.AccountID == req.SourceAccountID {
		return nil, apperr.Validation("a card cannot pay itself")
	}

	release, err := acquire(ctx, s.locker, cardKey(card.ID), accountKey(card.AccountID), accountKey(req.SourceAccountID))
	if err != nil {
		return nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	uctx := uow.Context()

	card, err = uow.CreditCards.GetForUpdate(uctx, householdID, req.CardID)
	if err != nil {
		return nil, err
	}
	source, err := uow.Accounts.Get(uctx, householdID, req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if source.Balance.LessThan(req.Amount) {
		return nil, apperr.InsufficientFunds("account %s balance %s is below %s",
			source.ID, source.Balance.String(), req.Amount.String())
	}

	statement, err := uow.Statements.OldestUnpaid(uctx, card.ID)
	if err != nil {
		return nil, err
	}

	debit, _, err := s.ledger.TransferInUnit(uow, householdID, &TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   card.AccountID,
		Amount:        req.Amount,
		Date:          req.Date,
		Description:   "Credit card payment",
	})
	if err != nil {
		return nil, err
	}

	payment := &model.CreditCardPayment{
		ID:            uuid.NewString(),
		CreditCardID:  card.ID,
		Amount:        req.Amount,
		PaymentDate:   debit.Date,
		PaymentType:   model.PaymentTypePartial,
		TransactionID: debit.ID,
	}
	if statement != nil {
		payment.StatementID = &statement.ID
		payment.PaymentType = classifyPayment(statement, req.Amount)

		statement.AmountPaid = statement.AmountPaid.Add(req.Amount)
		if !statement.AmountPaid.LessThan(statement.ClosingBalance) &&
			model.CanStatementTransition(statement.Status, model.StatementStatusPaid) {
			statement.Status = model.StatementStatusPaid
		}
		if err := uow.Statements.UpdatePayment(uctx, statement); err != nil {
			return nil, fmt.Errorf("update statement: %w", err)
		}
	}
	if req.PaymentType != nil {
		payment.PaymentType = *req.PaymentType
	}
	if err := uow.CreditCards.CreatePayment(uctx, payment); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"card_id": card.ID,
		"amount":  req.Amount.String(),
		"type":    payment.PaymentType,
	})
	if statement != nil {
		entry = entry.WithFields(logrus.Fields{"statement_id": statement.ID, "statement_status": statement.Status})
	}
	entry.Info("card payment applied")
	return payment, nil
}

func classifyPayment(statement *model.CreditCardStatement, amount decimal.Decimal) model.PaymentType {
	switch {
	case !amount.LessThan(statement.Remaining()):
		return model.PaymentTypeFull
	case amount.Equal(statement.MinimumDue):
		return model.PaymentTypeMinimum
	default:
		return model.PaymentTypePartial
	}
}

// GenerateStatement closes the billing cycle that ended on or before asOf.
// A cycle can be billed once; a second call returns ErrConflict.
func (s *CreditCardService) GenerateStatement(ctx context.Context, householdID, cardID string, asOf time.Time) (*model.CreditCardStatement, error) {
	if asOf.IsZero() {
		return nil, apperr.Validation("as_of is required")
	}
	if _, err := s.cards.Get(ctx, householdID, cardID); err != nil {
		return nil, err
	}

	release, err := acquire(ctx, s.locker, cardKey(cardID))
	if err != nil {
		return nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	statement, err := s.generateInUnit(uow, householdID, cardID, asOf)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"card_id":      cardID,
		"statement_id": statement.ID,
		"cycle_end":    statement.CycleEnd.Format("2006-01-02"),
		"closing":      statement.ClosingBalance.String(),
		"minimum_due":  statement.MinimumDue.String(),
	}).Info("statement generated")
	return statement, nil
}

func (s *CreditCardService) generateInUnit(uow *repository.UnitOfWork, householdID, cardID string, asOf time.Time) (*model.CreditCardStatement, error) {
	uctx := uow.Context()

	card, err := uow.CreditCards.GetForUpdate(uctx, householdID, cardID)
	if err != nil {
		return nil, err
	}
	window := BillingWindow(card.BillingCycleStartDay, asOf)

	dup, err := uow.Statements.ForCycle(uctx, card.ID, window.End)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, apperr.Conflict("statement for cycle ending %s already generated", window.End.Format("2006-01-02"))
	}

	prev, err := uow.Statements.Latest(uctx, card.ID)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.CycleEnd.After(window.End) {
		return nil, apperr.Conflict("a later cycle (ending %s) is already billed", prev.CycleEnd.Format("2006-01-02"))
	}
	if prev != nil {
		// cycles never billed since prev roll into this statement
		window.Start = prev.CycleEnd.AddDate(0, 0, 1)
	}

	txns, err := uow.Transactions.InWindow(uctx, card.AccountID, window.Start, window.End.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	spends, payments := decimal.Zero, decimal.Zero
	for _, t := range txns {
		if t.Kind == model.TransactionKindExpense {
			spends = spends.Add(t.Amount)
		} else {
			payments = payments.Add(t.Amount)
		}
	}

	opening := decimal.Zero
	if prev != nil {
		opening = prev.ClosingBalance
	}
	interest := s.interest.Interest(card, prev, window)
	closing := nonNegative(opening.Add(spends).Sub(payments).Add(interest))
	minimumDue := nonNegative(closing.Mul(card.MinimumDuePercent).Div(hundred).Round(2))

	statement := &model.CreditCardStatement{
		ID:              uuid.NewString(),
		StatementNo:     idgen.StatementNo(),
		CreditCardID:    card.ID,
		CycleStart:      window.Start,
		CycleEnd:        window.End,
		StatementDate:   calendar.DateOnly(asOf),
		OpeningBalance:  opening,
		TotalSpends:     spends,
		TotalPayments:   payments,
		InterestCharged: interest,
		ClosingBalance:  closing,
		MinimumDue:      minimumDue,
		DueDate:         window.End.AddDate(0, 0, card.DueDays),
		AmountPaid:      decimal.Zero,
		Status:          model.StatementStatusOpen,
	}
	if statement.ClosingBalance.IsZero() {
		// nothing owed
		statement.Status = model.StatementStatusPaid
	}
	if err := uow.Statements.Create(uctx, statement); err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	return statement, nil
}

// GenerateDueStatements bills every active card whose latest closed cycle
// has no statement yet. A card already billed before catches up on any later
// run, so a missed day never drops a cycle; a card never billed is only
// picked up on the day its cycle closes.
func (s *CreditCardService) GenerateDueStatements(ctx context.Context, asOf time.Time) (int, error) {
	cards, err := s.cards.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	day := calendar.DateOnly(asOf)
	generated := 0
	var errs []error
	for _, card := range cards {
		due, err := s.cycleUnbilled(ctx, card, day)
		if err != nil {
			errs = append(errs, fmt.Errorf("card %s: %w", card.ID, err))
			continue
		}
		if !due {
			continue
		}
		_, err = s.GenerateStatement(ctx, card.HouseholdID, card.ID, day)
		switch {
		case err == nil:
			generated++
		case errors.Is(err, apperr.ErrConflict):
			s.log.WithField("card_id", card.ID).Debug("cycle already billed")
		default:
			s.log.WithError(err).WithField("card_id", card.ID).Error("generate statement")
			errs = append(errs, fmt.Errorf("card %s: %w", card.ID, err))
		}
	}
	return generated, errors.Join(errs...)
}

func (s *CreditCardService) cycleUnbilled(ctx context.Context, card *model.CreditCard, day time.Time) (bool, error) {
	end := BillingWindow(card.BillingCycleStartDay, day).End
	latest, err := s.statements.Latest(ctx, card.ID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return end.Equal(day), nil
	}
	return latest.CycleEnd.Before(end), nil
}

// MarkOverdue flags OPEN statements whose due date is before asOf.
func (s *CreditCardService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.statements.MarkOverdue(ctx, calendar.DateOnly(asOf))
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("statements marked overdue")
	}
	return n, nil
}

func (s *CreditCardService) GetCard(ctx context.Context, householdID, id string) (*model.CreditCard, error) {
	return s.cards.Get(ctx, householdID, id)
}

func (s *CreditCardService) ListStatements(ctx context.Context, householdID, cardID string) ([]*model.CreditCardStatement, error) {
	if _, err := s.cards.Get(ctx, householdID, cardID); err != nil {
		return nil, err
	}
	return s.statements.ListByCard(ctx, cardID)
}

func (s *CreditCardService) ListPayments(ctx context.Context, householdID, cardID string) ([]*model.CreditCardPayment, error) {
	if _, err := s.cards.Get(ctx, householdID, cardID); err != nil {
		return nil, err
	}
	return s.cards.ListPayments(ctx, cardID)
}
