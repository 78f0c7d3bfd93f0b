package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
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

const (
	refreshPosted   = "posted"
	refreshReversed = "reversed"
)

// LedgerService is the only writer of Account.Balance. Every posting inserts
// the transaction row and moves the balance inside one unit of work.
//
// Lock order for every writer in this package: entity locks first (sorted by
// key), then the unit of work, then row locks. Taking the database
// transaction before an entity lock can starve single-connection pools.
type LedgerService struct {
	uow      *repository.UnitOfWorkFactory
	accounts *repository.AccountRepository
	txns     *repository.TransactionRepository
	locker   lock.Locker
	notifier RefreshNotifier
	log      *logrus.Logger
	now      func() time.Time
}

type Option func(*options)

type options struct {
	notifier RefreshNotifier
	now      func() time.Time
	interest InterestPolicy
}

func WithNotifier(n RefreshNotifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock replaces the wall clock used for defaults such as paid dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithInterestPolicy(p InterestPolicy) Option {
	return func(o *options) { o.interest = p }
}

func buildOptions(opts []Option) options {
	o := options{
		notifier: nopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
		interest: ZeroInterestPolicy{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func NewLedgerService(db *gorm.DB, uow *repository.UnitOfWorkFactory, locker lock.Locker, log *logrus.Logger, opts ...Option) *LedgerService {
	o := buildOptions(opts)
	return &LedgerService{
		uow:      uow,
		accounts: repository.NewAccountRepository(db),
		txns:     repository.NewTransactionRepository(db),
		locker:   locker,
		notifier: o.notifier,
		log:      log,
		now:      o.now,
	}
}

func accountKey(id string) string { return "account:" + id }
func loanKey(id string) string    { return "loan:" + id }
func cardKey(id string) string    { return "card:" + id }

// acquire maps lock failures to ErrConflict.
func acquire(ctx context.Context, l lock.Locker, keys ...string) (func(), error) {
	release, err := l.Acquire(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	}
	return release, nil
}

func (s *LedgerService) CreateAccount(ctx context.Context, householdID string, req *CreateAccountRequest) (*model.Account, error) {
	if !req.Kind.Valid() {
		return nil, apperr.Validation("unknown account kind %q", req.Kind)
	}
	if len(req.Currency) != 3 {
		return nil, apperr.Validation("currency must be an ISO 4217 code")
	}
	account := &model.Account{
		ID:          uuid.NewString(),
		HouseholdID: householdID,
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Kind:        req.Kind,
		Currency:    strings.ToUpper(req.Currency),
		Balance:     decimal.Zero,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, householdID, id string) (*model.Account, error) {
	return s.accounts.Get(ctx, householdID, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, householdID, accountID string, page, pageSize int) ([]*model.Transaction, int64, error) {
	if _, err := s.accounts.Get(ctx, householdID, accountID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.txns.ListByAccount(ctx, accountID, page, pageSize)
}

// Post records one transaction and moves the account balance.
func (s *LedgerService) Post(ctx context.Context, householdID string, req *PostTransactionRequest) (*model.Transaction, error) {
	if err := validatePost(req); err != nil {
		return nil, err
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

	trans, err := s.PostInUnit(uow, householdID, req)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": trans.ID,
		"account_id":     trans.AccountID,
		"kind":           trans.Kind,
		"amount":         trans.Amount.String(),
	}).Info("transaction posted")
	return trans, nil
}

func validatePost(req *PostTransactionRequest) error {
	if req.AccountID == "" {
		return apperr.Validation("account_id is required")
	}
	if !req.Kind.Valid() {
		return apperr.Validation("unknown transaction kind %q", req.Kind)
	}
	if !req.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than zero")
	}
	return nil
}

// PostInUnit is Post without lock or commit handling, for services that
// compose a posting into their own unit of work. The caller holds the
// account lock.
func (s *LedgerService) PostInUnit(uow *repository.UnitOfWork, householdID string, req *PostTransactionRequest) (*model.Transaction, error) {
	if err := validatePost(req); err != nil {
		return nil, err
	}
	ctx := uow.Context()

	account, err := uow.Accounts.GetForUpdate(ctx, householdID, req.AccountID)
	if err != nil {
		return nil, err
	}

	if req.ID != "" {
		existing, err := uow.Transactions.Find(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.AccountID != req.AccountID || existing.HouseholdID != householdID {
				return nil, apperr.Conflict("transaction id %s already used", req.ID)
			}
			return existing, nil
		}
	}

	trans := &model.Transaction{
		ID:          req.ID,
		ReferenceNo: idgen.TransactionNo(),
		HouseholdID: householdID,
		AccountID:   account.ID,
		CategoryID:  req.CategoryID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Date:        s.dateOrNow(req.Date),
		Description: req.Description,
	}
	if trans.ID == "" {
		trans.ID = uuid.NewString()
	}

	if err := uow.Transactions.Create(ctx, trans); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := applyDelta(ctx, uow, account, trans.SignedAmount(), true); err != nil {
		return nil, err
	}

	s.notifyAfterCommit(uow, trans, refreshPosted)
	return trans, nil
}

// Transfer posts an EXPENSE on the source and a linked INCOME on the
// destination in one unit of work.
func (s *LedgerService) Transfer(ctx context.Context, householdID string, req *TransferRequest) (*model.Transaction, *model.Transaction, error) {
	if err := validateTransfer(req); err != nil {
		return nil, nil, err
	}

	release, err := acquire(ctx, s.locker, accountKey(req.FromAccountID), accountKey(req.ToAccountID))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	debit, credit, err := s.TransferInUnit(uow, householdID, req)
	if err != nil {
		return nil, nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"debit_id":  debit.ID,
		"credit_id": credit.ID,
		"from":      debit.AccountID,
		"to":        credit.AccountID,
		"amount":    debit.Amount.String(),
	}).Info("transfer posted")
	return debit, credit, nil
}

func validateTransfer(req *TransferRequest) error {
	if req.FromAccountID == "" || req.ToAccountID == "" {
		return apperr.Validation("from_account_id and to_account_id are required")
	}
	if req.FromAccountID == req.ToAccountID {
		return apperr.Validation("cannot transfer to the same account")
	}
	if !req.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than zero")
	}
	return nil
}

// TransferInUnit is Transfer inside a caller's unit of work. The caller
// holds both account locks.
func (s *LedgerService) TransferInUnit(uow *repository.UnitOfWork, householdID string, req *TransferRequest) (*model.Transaction, *model.Transaction, error) {
	if err := validateTransfer(req); err != nil {
		return nil, nil, err
	}
	ctx := uow.Context()

	// row locks in a stable order
	ids := []string{req.FromAccountID, req.ToAccountID}
	sort.Strings(ids)
	locked := make(map[string]*model.Account, 2)
	for _, id := range ids {
		account, err := uow.Accounts.GetForUpdate(ctx, householdID, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = account
	}
	from, to := locked[req.FromAccountID], locked[req.ToAccountID]
	if from.Currency != to.Currency {
		return nil, nil, apperr.Validation("currency mismatch: %s to %s", from.Currency, to.Currency)
	}

	if req.ID != "" {
		existing, err := uow.Transactions.Find(ctx, req.ID)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			return replayTransfer(ctx, uow, existing, req)
		}
	}

	debitID, creditID := req.ID, uuid.NewString()
	if debitID == "" {
		debitID = uuid.NewString()
	}
	date := s.dateOrNow(req.Date)

	debit := &model.Transaction{
		ID:                  debitID,
		ReferenceNo:         idgen.TransactionNo(),
		HouseholdID:         householdID,
		AccountID:           from.ID,
		Kind:                model.TransactionKindExpense,
		Amount:              req.Amount,
		Date:                date,
		Description:         req.Description,
		LinkedTransactionID: &creditID,
	}
	credit := &model.Transaction{
		ID:                  creditID,
		ReferenceNo:         idgen.TransactionNo(),
		HouseholdID:         householdID,
		AccountID:           to.ID,
		Kind:                model.TransactionKindIncome,
		Amount:              req.Amount,
		Date:                date,
		Description:         req.Description,
		LinkedTransactionID: &debitID,
	}

	for _, leg := range []struct {
		trans   *model.Transaction
		account *model.Account
	}{{debit, from}, {credit, to}} {
		if err := uow.Transactions.Create(ctx, leg.trans); err != nil {
			return nil, nil, fmt.Errorf("insert transfer leg: %w", err)
		}
		if err := applyDelta(ctx, uow, leg.account, leg.trans.SignedAmount(), true); err != nil {
			return nil, nil, err
		}
		s.notifyAfterCommit(uow, leg.trans, refreshPosted)
	}
	return debit, credit, nil
}

func replayTransfer(ctx context.Context, uow *repository.UnitOfWork, debit *model.Transaction, req *TransferRequest) (*model.Transaction, *model.Transaction, error) {
	if debit.AccountID != req.FromAccountID || debit.LinkedTransactionID == nil {
		return nil, nil, apperr.Conflict("transaction id %s already used", req.ID)
	}
	credit, err := uow.Transactions.Find(ctx, *debit.LinkedTransactionID)
	if err != nil {
		return nil, nil, err
	}
	if credit == nil || credit.AccountID != req.ToAccountID {
		return nil, nil, apperr.Conflict("transaction id %s already used", req.ID)
	}
	return debit, credit, nil
}

// Reverse deletes a transaction and undoes its balance effect. A transfer
// leg takes its linked leg with it. Transactions that settle an EMI or a
// card payment cannot be reversed here.
func (s *LedgerService) Reverse(ctx context.Context, householdID, transactionID string) error {
	// read once unlocked to learn which accounts to lock
	trans, err := s.txns.Get(ctx, householdID, transactionID)
	if err != nil {
		return err
	}
	keys := []string{accountKey(trans.AccountID)}
	if trans.LinkedTransactionID != nil {
		linked, err := s.txns.Find(ctx, *trans.LinkedTransactionID)
		if err != nil {
			return err
		}
		if linked != nil {
			keys = append(keys, accountKey(linked.AccountID))
		}
	}

	release, err := acquire(ctx, s.locker, keys...)
	if err != nil {
		return err
	}
	defer release()

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := s.ReverseInUnit(uow, householdID, transactionID); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.log.WithField("transaction_id", transactionID).Info("transaction reversed")
	return nil
}

func (s *LedgerService) ReverseInUnit(uow *repository.UnitOfWork, householdID, transactionID string) error {
	ctx := uow.Context()

	trans, err := uow.Transactions.Get(ctx, householdID, transactionID)
	if err != nil {
		return err
	}
	legs := []*model.Transaction{trans}
	if trans.LinkedTransactionID != nil {
		linked, err := uow.Transactions.Find(ctx, *trans.LinkedTransactionID)
		if err != nil {
			return err
		}
		if linked != nil {
			legs = append(legs, linked)
		}
	}

	ids := make([]string, len(legs))
	for i, leg := range legs {
		ids[i] = leg.ID
	}
	if used, err := uow.Loans.PaysTransactions(ctx, ids...); err != nil {
		return err
	} else if used {
		return apperr.Conflict("transaction %s settles a loan installment", transactionID)
	}
	if used, err := uow.CreditCards.PaysTransactions(ctx, ids...); err != nil {
		return err
	} else if used {
		return apperr.Conflict("transaction %s settles a card payment", transactionID)
	}

	sort.Slice(legs, func(i, j int) bool { return legs[i].AccountID < legs[j].AccountID })
	for _, leg := range legs {
		account, err := uow.Accounts.GetForUpdate(ctx, householdID, leg.AccountID)
		if err != nil {
			return err
		}
		if err := uow.Transactions.Delete(ctx, leg.ID); err != nil {
			return err
		}
		if err := applyDelta(ctx, uow, account, leg.SignedAmount().Neg(), false); err != nil {
			return err
		}
		s.notifyAfterCommit(uow, leg, refreshReversed)
	}
	return nil
}

// applyDelta moves the account balance and, for a card account, the card's
// outstanding amount. New debits on a card are checked against its limit.
func applyDelta(ctx context.Context, uow *repository.UnitOfWork, account *model.Account, delta decimal.Decimal, enforceLimit bool) error {
	if account.Kind == model.AccountKindCreditCard {
		card, err := uow.CreditCards.FindByAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		if card != nil {
			outstanding := card.OutstandingAmount.Sub(delta)
			if enforceLimit && delta.IsNegative() && outstanding.GreaterThan(card.CreditLimit) {
				return apperr.LimitExceeded("charge of %s exceeds credit limit %s (outstanding %s)",
					delta.Neg().String(), card.CreditLimit.String(), card.OutstandingAmount.String())
			}
			card.OutstandingAmount = outstanding
			if err := uow.CreditCards.UpdateOutstanding(ctx, card); err != nil {
				return fmt.Errorf("update card outstanding: %w", err)
			}
		}
	}
	if err := uow.Accounts.ApplyDelta(ctx, account, delta); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return err
		}
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (s *LedgerService) notifyAfterCommit(uow *repository.UnitOfWork, trans *model.Transaction, reason string) {
	event := model.PeriodRefreshEvent{
		HouseholdID:   trans.HouseholdID,
		AccountID:     trans.AccountID,
		Period:        calendar.Period(trans.Date),
		TransactionID: trans.ID,
		Reason:        reason,
		OccurredAt:    s.now(),
	}
	uow.AfterCommit(func() { s.notifier.NotifyPeriodRefresh(event) })
}

func (s *LedgerService) dateOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t.UTC()
}
