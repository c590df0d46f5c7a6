// Provides common recdb errors definitions.
package recdb_errors

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("recdb: database is closed")
	ErrUnknownClass     = errors.New("recdb: unknown class")
	ErrIllegalArgument  = errors.New("recdb: illegal argument")
	ErrGroupByRange     = errors.New("recdb: grouping by a numeric range is not supported")
	ErrWriteOscillation = errors.New("recdb: insert/update did not settle after one flip in each direction")
	ErrRetriesExhausted = errors.New("recdb: write retries exhausted")

	// ErrConcurrentUpdate is returned when a compare-and-swap update matched
	// no rows. The write loop restarts the whole save when it sees it.
	ErrConcurrentUpdate = errors.New("recdb: concurrent update")
)

type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "recdb: connection unavailable: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadTimeout is a statement that ran past its deadline.
type ReadTimeout struct {
	SQL string
	Err error
}

func (e *ReadTimeout) Error() string {
	return fmt.Sprintf("recdb: read timed out: %v [%s]", e.Err, e.SQL)
}

func (e *ReadTimeout) Unwrap() error { return e.Err }

type SQLError struct {
	SQL string
	Err error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("recdb: %v [%s]", e.Err, e.SQL)
}

func (e *SQLError) Unwrap() error { return e.Err }

// UnsupportedIndexError means the key has no usable index. The caller can
// fix it by declaring one.
type UnsupportedIndexError struct {
	Key    string
	Reason string
}

func (e *UnsupportedIndexError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("recdb: can't query [%s] because it's not indexed", e.Key)
	}
	return fmt.Sprintf("recdb: can't use [%s]: %s", e.Key, e.Reason)
}

type UnsupportedPredicateError struct {
	Predicate string
	Reason    string
}

func (e *UnsupportedPredicateError) Error() string {
	return fmt.Sprintf("recdb: unsupported predicate [%s]: %s", e.Predicate, e.Reason)
}

// MissingSymbolsError lists index names that have no symbol yet. Symbols are
// only created outside of write transactions, so the write loop creates them
// and starts over.
type MissingSymbolsError struct {
	Names []string
}

func (e *MissingSymbolsError) Error() string {
	return fmt.Sprintf("recdb: %d index symbols must be created first", len(e.Names))
}
