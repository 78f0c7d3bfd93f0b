package database

import (
	"path/filepath"
	"testing"

	"homeledger/internal/config"
	"homeledger/internal/logger"
	"homeledger/internal/model"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "nested", "ledger.db"),
		LogLevel:   "silent",
	}
	db, err := Open(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, table := range []any{&model.Account{}, &model.Transaction{}, &model.LoanEMI{}, &model.CreditCardStatement{}, &model.OutboxMessage{}} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table for %T not created", table)
		}
	}
	if !db.Migrator().HasIndex(&model.CreditCardStatement{}, "idx_statement_cycle") {
		t.Error("unique statement cycle index missing")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}, logger.Discard()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
