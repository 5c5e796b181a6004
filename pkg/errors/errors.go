package errors

import (
	stderrors "errors"
	"fmt"
)

// ========== Response codes ==========

const (
	CodeSuccess = 200
)

// HTTP layer codes (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

// ========== Domain error taxonomy ==========

// Kind classifies every error the core hands back to callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalid      // malformed input, rejected before any transaction
	KindDenied       // principal lacks scope or role
	KindNotFound     // missing or outside the caller's scope
	KindConflict     // invariant violation
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindDenied:
		return "denied"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Code maps a kind onto the response code table.
func (k Kind) Code() int {
	switch k {
	case KindInvalid:
		return CodeInvalidParam
	case KindDenied:
		return CodeForbidden
	case KindNotFound:
		return CodeNotFound
	case KindConflict:
		return CodeConflict
	default:
		return CodeServerError
	}
}

// Reason codes
const (
	ReasonExpired           = "EXPIRED"
	ReasonWrongHostel       = "WRONG_HOSTEL"
	ReasonRoleNotPermitted  = "ROLE_NOT_PERMITTED"
	ReasonNotOwner          = "NOT_OWNER"
	ReasonBedOccupied       = "BED_OCCUPIED"
	ReasonBedFree           = "BED_FREE"
	ReasonTenantHasBed      = "TENANT_HAS_BED"
	ReasonStaleBed          = "STALE_BED"
	ReasonLimitExceeded     = "LIMIT_EXCEEDED"
	ReasonFeatureDisabled   = "FEATURE_DISABLED"
	ReasonOverpayment       = "OVERPAYMENT"
	ReasonAmountMismatch    = "AMOUNT_MISMATCH"
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonAncestorDeleted   = "ANCESTOR_DELETED"
	ReasonEntityOccupied    = "ENTITY_OCCUPIED"
	ReasonTerminalState     = "TERMINAL_STATE"
	ReasonCapacityReached   = "CAPACITY_REACHED"
	ReasonTransient         = "TRANSIENT"
	ReasonDuplicate         = "DUPLICATE"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalid  = &AppError{Kind: KindInvalid}
	ErrDenied   = &AppError{Kind: KindDenied}
	ErrNotFound = &AppError{Kind: KindNotFound}
	ErrConflict = &AppError{Kind: KindConflict}
)

// AppError is a classified domain error.
type AppError struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *AppError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

// Is matches any AppError of the same kind; a target carrying a reason
// must match it too.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// WithCause attaches an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetail adds a key/value to Details
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newf(kind Kind, reason, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Invalidf(format string, args ...interface{}) *AppError {
	return newf(KindInvalid, "", format, args...)
}

func Deniedf(reason, format string, args ...interface{}) *AppError {
	return newf(KindDenied, reason, format, args...)
}

func NotFoundf(format string, args ...interface{}) *AppError {
	return newf(KindNotFound, "", format, args...)
}

func Conflictf(reason, format string, args ...interface{}) *AppError {
	return newf(KindConflict, reason, format, args...)
}

// Reason builds a sentinel for errors.Is(err, Reason(KindConflict, ReasonBedOccupied)).
func Reason(kind Kind, reason string) error {
	return &AppError{Kind: kind, Reason: reason}
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	var limitErr *LimitError
	if stderrors.As(err, &limitErr) {
		return KindDenied
	}
	return KindUnknown
}

// ReasonOf returns the reason code of a classified error.
func ReasonOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Reason
	}
	var limitErr *LimitError
	if stderrors.As(err, &limitErr) {
		return ReasonLimitExceeded
	}
	return ""
}

// LimitError reports a subscription limit rejection. Its kind is Denied.
type LimitError struct {
	LimitName string
	Current   int64
	Max       int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("denied(%s): %s reached (current=%d, max=%d)", ReasonLimitExceeded, e.LimitName, e.Current, e.Max)
}

func (e *LimitError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == KindDenied && (t.Reason == "" || t.Reason == ReasonLimitExceeded)
}
