package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"gorm.io/gorm"
)

// ErrDuplicateKey reports a unique constraint violation.
var ErrDuplicateKey = errors.New("duplicate key")

// PostgreSQL SQLSTATE codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgQueryCanceled        = "57014"
)

// Classify maps driver errors onto the ledger taxonomy. Unknown errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicateKey
		case pgLockNotAvailable, pgDeadlockDetected, pgQueryCanceled:
			return ledgererr.Wrap(ledgererr.KindLockContention, err, "System busy, please retry the transaction")
		case pgSerializationFailure:
			return ledgererr.Wrap(ledgererr.KindOptimisticConflict, err, "Concurrent update detected. Please retry.")
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrDuplicateKey
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "database table is locked"):
		return ledgererr.Wrap(ledgererr.KindLockContention, err, "System busy, please retry the transaction")
	}
	return err
}
