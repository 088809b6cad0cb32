package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// ErrStoreUnavailable matches any StoreError caused by connectivity problems
// or timeouts
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInvalidTable is returned for table names that are not plain identifiers
var ErrInvalidTable = errors.New("invalid table name")

// StoreError is returned by every Store operation that fails
type StoreError struct {
	Op          string
	Backend     Kind
	Unavailable bool
	Retryable   bool
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStoreUnavailable) true for connectivity failures
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable && e.Unavailable
}

// IsRetryable reports whether err is a StoreError worth retrying
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable
}

// sqlite primary result codes
const (
	sqliteBusy     = 5
	sqliteLocked   = 6
	sqliteCantOpen = 14
)

func wrapErr(op string, backend Kind, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	unavailable, retryable := classify(err)
	return &StoreError{Op: op, Backend: backend, Unavailable: unavailable, Retryable: retryable, Err: err}
}

// classify decides whether err is a connectivity failure and whether the
// operation may succeed if retried
func classify(err error) (unavailable, retryable bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true, true
	}
	if errors.Is(err, context.Canceled) {
		return false, false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08": // connection_exception
			return true, true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03": // shutdown, cannot connect now
			return true, true
		case pqErr.Code == "53300": // too_many_connections
			return true, true
		case pqErr.Code == "40001", pqErr.Code == "40P01": // serialization_failure, deadlock_detected
			return false, true
		}
		return false, false
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return false, true
		case sqliteCantOpen:
			return true, false
		}
		return false, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, true
	}

	return false, false
}
