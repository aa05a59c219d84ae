package durable

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateKey is returned by Add when the key or a unique column already exists.
	ErrDuplicateKey = errors.New("durable: duplicate key")
	// ErrTransactionAborted wraps any failure that rolled back a local transaction.
	ErrTransactionAborted = errors.New("durable: transaction aborted")
	// ErrStorageUnsupported is returned by every operation of a store without a database.
	ErrStorageUnsupported = errors.New("durable: storage unsupported")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
