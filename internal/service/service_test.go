package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"homeledger/internal/config"
	"homeledger/internal/infrastructure/database"
	"homeledger/internal/infrastructure/lock"
	"homeledger/internal/logger"
	"homeledger/internal/model"
	"homeledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.PeriodRefreshEvent
}

func (r *recordingNotifier) NotifyPeriodRefresh(e model.PeriodRefreshEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type testEnv struct {
	db     *gorm.DB
	ledger *LedgerService
	loans  *LoanService
	cards  *CreditCardService
	events *recordingNotifier
	hh     string
}

func newTestEnv(t *testing.T, extra ...Option) *testEnv {
	t.Helper()
	log := logger.Discard()
	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
		LogLevel:   "silent",
	}, log)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	events := &recordingNotifier{}
	opts := append([]Option{WithNotifier(events), WithClock(func() time.Time { return testNow })}, extra...)
	locker := lock.NewLocalLocker(lock.Options{RetryInterval: 5 * time.Millisecond, MaxRetries: 2000})
	uow := repository.NewUnitOfWorkFactory(db, 10*time.Second)
	ledger := NewLedgerService(db, uow, locker, log, opts...)

	return &testEnv{
		db:     db,
		ledger: ledger,
		loans:  NewLoanService(db, uow, ledger, locker, log, opts...),
		cards:  NewCreditCardService(db, uow, ledger, locker, log, opts...),
		events: events,
		hh:     "household-1",
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) account(t *testing.T, kind model.AccountKind) *model.Account {
	t.Helper()
	a, err := e.ledger.CreateAccount(context.Background(), e.hh, &CreateAccountRequest{
		Name:     string(kind) + " account",
		Kind:     kind,
		Currency: "inr",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func (e *testEnv) fund(t *testing.T, accountID, amount string) {
	t.Helper()
	_, err := e.ledger.Post(context.Background(), e.hh, &PostTransactionRequest{
		AccountID: accountID,
		Kind:      model.TransactionKindIncome,
		Amount:    dec(amount),
		Date:      date(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("fund %s: %v", accountID, err)
	}
}

func (e *testEnv) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	a, err := e.ledger.GetAccount(context.Background(), e.hh, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a.Balance
}

func (e *testEnv) transactionCount(t *testing.T, accountID string) int64 {
	t.Helper()
	_, total, err := e.ledger.ListTransactions(context.Background(), e.hh, accountID, 1, 200)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return total
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Round(2).Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got.String(), want)
	}
}
