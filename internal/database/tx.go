package database

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/logger"
	"hostelops/pkg/metrics"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	txMu         sync.RWMutex
	txMaxRetries = 3
	txBaseDelay  = 20 * time.Millisecond
)

// ConfigureTx sets the retry policy for RunInTx
func ConfigureTx(maxRetries int, baseDelay time.Duration) {
	txMu.Lock()
	defer txMu.Unlock()
	if maxRetries >= 0 {
		txMaxRetries = maxRetries
	}
	if baseDelay > 0 {
		txBaseDelay = baseDelay
	}
}

func txPolicy() (int, time.Duration) {
	txMu.RLock()
	defer txMu.RUnlock()
	return txMaxRetries, txBaseDelay
}

// RunInTx runs fn inside one transaction. Serialization failures and
// deadlocks are retried with exponential backoff; once the retries are
// spent the caller gets Conflict(TRANSIENT). Every other error rolls back
// and is returned unchanged.
func RunInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	maxRetries, delay := txPolicy()

	var err error
	for attempt := 0; ; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if attempt >= maxRetries {
			break
		}
		metrics.TxRetries.Inc()
		logger.GetLogger().WithField("attempt", attempt+1).Debugf("retrying transaction: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return apperrors.Conflictf(apperrors.ReasonTransient, "concurrent update, retry later").WithCause(err)
}

// IsSerializationFailure reports SQLSTATE 40001/40P01, or a busy sqlite file.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// IsUniqueViolation reports a duplicate key on insert
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ForUpdate locks the selected rows until the transaction ends.
// SQLite has no row locks; the dialect drops the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
