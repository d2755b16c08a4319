package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups failures by where they originate.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryValidation
	CategoryTransport
	CategoryProtocol
	CategoryCIPStatus
	CategoryTimeout
	CategoryCancelled
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryTransport:
		return "transport"
	case CategoryProtocol:
		return "protocol"
	case CategoryCIPStatus:
		return "cip_status"
	case CategoryTimeout:
		return "timeout"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinel errors shared by the session and controller layers.
var (
	ErrNotConnected = stderrors.New("not connected")
	ErrNoSession    = stderrors.New("no session registered")
	ErrNoConnection = stderrors.New("no connection established")
	ErrTimeout      = stderrors.New("request timed out")
	ErrCancelled    = stderrors.New("request cancelled")
)

// ClassifiedError attaches a Category and the failed operation to an error.
type ClassifiedError struct {
	Category Category
	Op       string
	Err      error
}

func (e *ClassifiedError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err. A nil err stays nil.
func Classify(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Category: category, Op: op, Err: err}
}

// CategoryOf returns the outermost category attached to err. Errors wrapping
// ErrTimeout or ErrCancelled classify themselves.
func CategoryOf(err error) Category {
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	switch {
	case stderrors.Is(err, ErrTimeout):
		return CategoryTimeout
	case stderrors.Is(err, ErrCancelled):
		return CategoryCancelled
	}
	return CategoryUnknown
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	return stderrors.Is(err, ErrTimeout) || CategoryOf(err) == CategoryTimeout
}

// IsCancelled reports whether err is a cancelled request.
func IsCancelled(err error) bool {
	return stderrors.Is(err, ErrCancelled) || CategoryOf(err) == CategoryCancelled
}

// Is, As and Join forward to the standard library so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
