package common

import (
	"errors"
	"fmt"
)

type GoDBErrorCode int

const (
	// DuplicateObjectError indicates an attempt to register a table or file
	// that already exists.
	DuplicateObjectError GoDBErrorCode = iota
	// NoSuchObjectError indicates a request for a table, file or tuple that
	// does not exist.
	NoSuchObjectError
	// TransactionAbortedError is returned by the lock manager when wait-die
	// decides the requesting transaction must abort. Operators propagate it unchanged.
	TransactionAbortedError
	// IncompatibleSchemaError indicates an operator was built against a child or
	// table whose schema does not fit, or an invalid field index.
	IncompatibleSchemaError
	// UnsupportedAggregateError indicates an aggregate operator that is not defined
	// for the field type, e.g. SUM over strings.
	UnsupportedAggregateError
	// InvalidArgumentError indicates a caller-supplied argument outside the
	// accepted range (child index, page size, capacity).
	InvalidArgumentError
	// StorageError wraps an I/O failure from the operating system.
	StorageError
	// CorruptFileError indicates a heap file whose contents or length cannot be
	// interpreted as a sequence of pages.
	CorruptFileError
	// BufferPoolFullError is returned when every cached page is dirty or in use
	// and no frame can be reclaimed.
	BufferPoolFullError
	// IteratorNotOpenError indicates HasNext, Next or Rewind on an iterator that
	// is not open.
	IteratorNotOpenError
	// NoSuchElementError indicates Next on an exhausted iterator.
	NoSuchElementError
	// AggregatorFinalizedError indicates a merge into an aggregator whose results
	// have already been produced.
	AggregatorFinalizedError
	// TransactionStateError indicates commit or abort of a finished transaction.
	TransactionStateError
)

func (ec GoDBErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case TransactionAbortedError:
		return "TransactionAbortedError"
	case IncompatibleSchemaError:
		return "IncompatibleSchemaError"
	case UnsupportedAggregateError:
		return "UnsupportedAggregateError"
	case InvalidArgumentError:
		return "InvalidArgumentError"
	case StorageError:
		return "StorageError"
	case CorruptFileError:
		return "CorruptFileError"
	case BufferPoolFullError:
		return "BufferPoolFullError"
	case IteratorNotOpenError:
		return "IteratorNotOpenError"
	case NoSuchElementError:
		return "NoSuchElementError"
	case AggregatorFinalizedError:
		return "AggregatorFinalizedError"
	case TransactionStateError:
		return "TransactionStateError"
	}
	return "unknown"
}

// GoDBError is the custom error type for the database engine.
// It wraps a specific GoDBErrorCode with a detailed message and, for storage
// failures, the underlying cause.
//
// Two GoDBErrors match under errors.Is when their codes are equal, so callers
// can test against the sentinel values below regardless of message.
type GoDBError struct {
	Code      GoDBErrorCode
	ErrString string
	Cause     error
}

func (e GoDBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("err: %s; msg: %s; cause: %v", e.Code.String(), e.ErrString, e.Cause)
	}
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

func (e GoDBError) Unwrap() error {
	return e.Cause
}

func (e GoDBError) Is(target error) bool {
	var other GoDBError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError builds a GoDBError with a formatted message.
func NewError(code GoDBErrorCode, format string, args ...any) GoDBError {
	return GoDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// WrapError builds a GoDBError that carries cause.
func WrapError(code GoDBErrorCode, cause error, format string, args ...any) GoDBError {
	return GoDBError{Code: code, ErrString: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the code of the first GoDBError in err's chain.
func CodeOf(err error) (GoDBErrorCode, bool) {
	var e GoDBError
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

var (
	ErrTransactionAborted  = GoDBError{Code: TransactionAbortedError, ErrString: "transaction aborted"}
	ErrIteratorNotOpen     = GoDBError{Code: IteratorNotOpenError, ErrString: "iterator is not open"}
	ErrNoSuchElement       = GoDBError{Code: NoSuchElementError, ErrString: "no more tuples"}
	ErrAggregatorFinalized = GoDBError{Code: AggregatorFinalizedError, ErrString: "aggregator results already produced"}
	ErrIncompatibleSchema  = GoDBError{Code: IncompatibleSchemaError, ErrString: "incompatible schema"}
	ErrCorruptFile         = GoDBError{Code: CorruptFileError, ErrString: "corrupt heap file"}
	ErrStorage             = GoDBError{Code: StorageError, ErrString: "storage failure"}
	ErrNoSuchObject        = GoDBError{Code: NoSuchObjectError, ErrString: "no such object"}
)
