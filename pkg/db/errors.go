package db

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for store operations
var (
	// ErrConnection is returned when the store cannot be opened
	ErrConnection = errors.New("database connection failed")

	// ErrSchema is returned when the tables cannot be created
	ErrSchema = errors.New("schema initialization failed")

	// ErrStorage wraps every failure reported by the engine while executing a statement
	ErrStorage = errors.New("storage error")

	// ErrConstraint is returned for foreign key, primary key and NOT NULL violations
	ErrConstraint = errors.New("constraint violation")

	// ErrClosed is returned when the manager is used after Close
	ErrClosed = errors.New("database manager is closed")

	// ErrNoSavepoint is returned when releasing or rolling back a savepoint that is not open
	ErrNoSavepoint = errors.New("savepoint is not open")
)

// IsConnection checks if an error is ErrConnection
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsStorage checks if an error is ErrStorage
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsConstraint checks if an error is ErrConstraint
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

// storageError classifies an engine error so callers can tell constraint
// violations apart from other storage failures.
type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *storageError) Unwrap() []error {
	wrapped := []error{ErrStorage, e.err}
	var sqliteErr sqlite3.Error
	if errors.As(e.err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		wrapped = append(wrapped, ErrConstraint)
	}
	return wrapped
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, err: err}
}
