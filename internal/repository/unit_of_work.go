package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UnitOfWork is one database transaction plus repositories bound to it.
//
//	uow, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Rollback()
//	... uow.Accounts / uow.Transactions ...
//	return uow.Commit()
//
// Rollback after Commit is a no-op. Work registered with AfterCommit runs
// only once the commit succeeded.
type UnitOfWork struct {
	ctx    context.Context
	cancel context.CancelFunc
	tx     *gorm.DB
	done   bool
	hooks  []func()

	Accounts     *AccountRepository
	Transactions *TransactionRepository
	Loans        *LoanRepository
	CreditCards  *CreditCardRepository
	Statements   *StatementRepository
	Categories   *CategoryRepository
	Outbox       *OutboxRepository
}

type UnitOfWorkFactory struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewUnitOfWorkFactory(db *gorm.DB, timeout time.Duration) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db, timeout: timeout}
}

// Begin opens a transaction bounded by the factory timeout. When the
// deadline passes the driver aborts and the transaction rolls back.
func (f *UnitOfWorkFactory) Begin(ctx context.Context) (*UnitOfWork, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	tx := f.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		cancel()
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return &UnitOfWork{
		ctx:          ctx,
		cancel:       cancel,
		tx:           tx,
		Accounts:     NewAccountRepository(tx),
		Transactions: NewTransactionRepository(tx),
		Loans:        NewLoanRepository(tx),
		CreditCards:  NewCreditCardRepository(tx),
		Statements:   NewStatementRepository(tx),
		Categories:   NewCategoryRepository(tx),
		Outbox:       NewOutboxRepository(tx),
	}, nil
}

// Context carries the unit's deadline; pass it to every repository call.
func (u *UnitOfWork) Context() context.Context {
	return u.ctx
}

func (u *UnitOfWork) AfterCommit(fn func()) {
	u.hooks = append(u.hooks, fn)
}

func (u *UnitOfWork) Commit() error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	u.done = true
	defer u.cancel()

	if err := u.ctx.Err(); err != nil {
		u.tx.Rollback()
		return fmt.Errorf("transaction deadline: %w", err)
	}
	if err := u.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, fn := range u.hooks {
		fn()
	}
	return nil
}

func (u *UnitOfWork) Rollback() {
	if u.done {
		return
	}
	u.done = true
	u.tx.Rollback()
	u.cancel()
}
