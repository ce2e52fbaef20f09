package db

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ledgerRow struct {
	ID       int
	EntryRef string `gorm:"uniqueIndex"`
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:dbclient_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&ledgerRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&ledgerRow{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestWithTxAtomicity(t *testing.T) {
	conn := openSQLite(t)
	client := Wrap(conn)
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{EntryRef: "sale:DO-1"}).Error
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	failed := errors.New("rail rejected")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{EntryRef: "payout:PO-1"}).Error; err != nil {
			return err
		}
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("expected callback error, got %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			tx.Create(&ledgerRow{EntryRef: "payout:PO-2"})
			panic("boom")
		})
	}()

	if n := countRows(t, conn); n != 1 {
		t.Fatalf("expected only the committed row, got %d", n)
	}
}

func TestPingAndClose(t *testing.T) {
	client := Wrap(openSQLite(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on a closed pool to fail")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openSQLite(t)
	if err := conn.Create(&ledgerRow{EntryRef: "sale:DO-1"}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := conn.Create(&ledgerRow{EntryRef: "sale:DO-1"}).Error
	if !IsUniqueViolation(dup, "") {
		t.Fatalf("expected unique violation, got %v", dup)
	}

	for _, err := range []error{nil, errors.New("boom")} {
		if IsUniqueViolation(err, "") {
			t.Fatalf("%v must not be a unique violation", err)
		}
	}
}
