package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dropone-app/dropone-backend/pkg/logger"
)

func newBufferedGormLogger(buf *bytes.Buffer) gormlogger.Interface {
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: logger.ParseLevel("debug"), Output: buf})
	return newGormLogger(logg, 50*time.Millisecond)
}

func statement() (string, int64) {
	return "UPDATE users SET balance_cents = balance_cents - 500 WHERE email = 's@example.com'", 0
}

func TestGormLoggerReportsFailedStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	gl := newBufferedGormLogger(buf)

	gl.Trace(context.Background(), time.Now(), statement, errors.New("check constraint violated"))

	out := buf.String()
	if !strings.Contains(out, "sql statement failed") || !strings.Contains(out, "balance_cents") {
		t.Fatalf("expected failed statement logged, got %s", out)
	}
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	gl := newBufferedGormLogger(buf)

	gl.Trace(context.Background(), time.Now(), statement, gorm.ErrRecordNotFound)

	if buf.Len() != 0 {
		t.Fatalf("expected silence for record not found, got %s", buf.String())
	}
}

func TestGormLoggerFlagsSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	gl := newBufferedGormLogger(buf)

	gl.Trace(context.Background(), time.Now().Add(-time.Second), statement, nil)
	if !strings.Contains(buf.String(), "slow sql statement") {
		t.Fatalf("expected slow statement warning, got %s", buf.String())
	}

	buf.Reset()
	gl.Trace(context.Background(), time.Now(), statement, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast statements should not log at warn level, got %s", buf.String())
	}
}

func TestGormLoggerSilentMode(t *testing.T) {
	buf := &bytes.Buffer{}
	gl := newBufferedGormLogger(buf).LogMode(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), statement, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode must not log, got %s", buf.String())
	}
}

func TestNewGormLoggerWithoutServiceLogger(t *testing.T) {
	if newGormLogger(nil, 0) != gormlogger.Discard {
		t.Fatalf("expected discard logger without a service logger")
	}
}
