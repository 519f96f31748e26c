package securekv

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies a StoreError.
type ErrorKind int

const (
	// InvalidKey means the caller passed an unusable key (empty or reserved).
	InvalidKey ErrorKind = iota + 1
	// BackendUnavailable means the selected backend could not be reached
	// or rejected the request.
	BackendUnavailable
	// SerializationError means a value could not be encoded.
	SerializationError
	// CryptoError means sealing or opening a fallback entry failed.
	CryptoError
)

// Sentinels for errors.Is checks against a StoreError.
var (
	ErrInvalidKey         = errors.New("invalid key")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrSerialization      = errors.New("serialization failed")
	ErrCrypto             = errors.New("encryption failed")

	// ErrReservedKey is the cause of an InvalidKey error for a key listed
	// in Options.ReservedKeys.
	ErrReservedKey = errors.New("key is reserved")
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidKey:
		return "invalid key"
	case BackendUnavailable:
		return "backend unavailable"
	case SerializationError:
		return "serialization error"
	case CryptoError:
		return "crypto error"
	default:
		return "error kind " + strconv.Itoa(int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case InvalidKey:
		return ErrInvalidKey
	case BackendUnavailable:
		return ErrBackendUnavailable
	case SerializationError:
		return ErrSerialization
	case CryptoError:
		return ErrCrypto
	default:
		return nil
	}
}

// StoreError is returned by every failing Store operation. Its message names
// the operation, key and backend but never the value or any key material.
type StoreError struct {
	Op      string // put, get, delete, exists
	Key     string
	Kind    ErrorKind
	Backend BackendKind
	Err     error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("securekv %s %q", e.Op, e.Key)
	if e.Backend != BackendNone {
		msg += " via " + e.Backend.String()
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error's kind.
func (e *StoreError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the ErrorKind of err if it is (or wraps) a StoreError.
func KindOf(err error) (ErrorKind, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// cryptoFault marks errors raised by the cipher so the store can tell them
// apart from persistence failures.
type cryptoFault struct {
	err error
}

func (f *cryptoFault) Error() string { return f.err.Error() }
func (f *cryptoFault) Unwrap() error { return f.err }
