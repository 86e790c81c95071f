package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode is an application error code.
type ErrorCode int

// Error codes, grouped by module.
const (
	// Common (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// Deposit flow (2000-2999)
	ErrFlowState          ErrorCode = 2000
	ErrFlowBusy           ErrorCode = 2001
	ErrCurrencyInvalid    ErrorCode = 2002
	ErrEmptyDetail        ErrorCode = 2003
	ErrCollectionPending  ErrorCode = 2004
	ErrFlowDesynchronized ErrorCode = 2005
	ErrNoDeviceAssigned   ErrorCode = 2006

	// Device (3000-3999)
	ErrDeviceUnreachable ErrorCode = 3000
	ErrDeviceStatus      ErrorCode = 3001
	ErrDeviceRejected    ErrorCode = 3002
	ErrDeviceTimeout     ErrorCode = 3003
	ErrDeviceBusy        ErrorCode = 3004
	ErrUnlockFailed      ErrorCode = 3005
	ErrWaitTimeout       ErrorCode = 3006

	// Bank notification (4000-4999)
	ErrBankUnreachable   ErrorCode = 4000
	ErrBankRejected      ErrorCode = 4001
	ErrBankResponse      ErrorCode = 4002
	ErrBankNotConfigured ErrorCode = 4003
	ErrBankExhausted     ErrorCode = 4004

	// Database (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrDatabaseUpdate  ErrorCode = 5003
	ErrDatabaseDelete  ErrorCode = 5004
	ErrTransaction     ErrorCode = 5005
	ErrDataIntegrity   ErrorCode = 5006

	// Config (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// Security (7000-7999)
	ErrAuthentication    ErrorCode = 7000
	ErrAuthorization     ErrorCode = 7001
	ErrTokenExpired      ErrorCode = 7002
	ErrTokenInvalid      ErrorCode = 7003
	ErrRateLimitExceeded ErrorCode = 7004
)

var errorMessages = map[ErrorCode]string{
	ErrUnknown:          "unknown error",
	ErrInvalidParam:     "invalid parameter",
	ErrNotFound:         "resource not found",
	ErrAlreadyExists:    "resource already exists",
	ErrPermissionDenied: "permission denied",
	ErrTimeout:          "operation timed out",
	ErrCanceled:         "operation canceled",
	ErrNotImplemented:   "not implemented",

	ErrFlowState:          "invalid deposit flow state",
	ErrFlowBusy:           "an operation is already in flight",
	ErrCurrencyInvalid:    "currency not available for deposit",
	ErrEmptyDetail:        "transaction detail is empty",
	ErrCollectionPending:  "device blocked: cash collection pending",
	ErrFlowDesynchronized: "flow desynchronized from device, operator intervention required",
	ErrNoDeviceAssigned:   "user has no deposit device assigned",

	ErrDeviceUnreachable: "device unreachable",
	ErrDeviceStatus:      "device status query failed",
	ErrDeviceRejected:    "device rejected the command",
	ErrDeviceTimeout:     "device command timed out",
	ErrDeviceBusy:        "device busy",
	ErrUnlockFailed:      "device unlock failed",
	ErrWaitTimeout:       "device did not reach the expected state in time",

	ErrBankUnreachable:   "bank endpoint unreachable",
	ErrBankRejected:      "bank rejected the operation",
	ErrBankResponse:      "invalid bank response",
	ErrBankNotConfigured: "bank API not configured",
	ErrBankExhausted:     "bank notification retries exhausted",

	ErrDatabaseConnect: "database connection failed",
	ErrDatabaseQuery:   "database query failed",
	ErrDatabaseInsert:  "database insert failed",
	ErrDatabaseUpdate:  "database update failed",
	ErrDatabaseDelete:  "database delete failed",
	ErrTransaction:     "database transaction failed",
	ErrDataIntegrity:   "data integrity violation",

	ErrConfigLoad:     "config load failed",
	ErrConfigParse:    "config parse failed",
	ErrConfigValidate: "config validation failed",
	ErrConfigMissing:  "config entry missing",

	ErrAuthentication:    "authentication failed",
	ErrAuthorization:     "authorization failed",
	ErrTokenExpired:      "token expired",
	ErrTokenInvalid:      "invalid token",
	ErrRateLimitExceeded: "rate limit exceeded",
}

// AppError is the application error type.
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"stack,omitempty"`
}

// StackFrame is one captured call frame.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches detail text.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause attaches a cause error.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New creates an application error for the given code.
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf creates an application error with formatted details.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap wraps an error under an application error code.
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// Already an AppError: keep the original code.
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf wraps an error with formatted details.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode extracts the error code, ErrUnknown for foreign errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack records the call stack, skipping runtime and this package.
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/venturus/cdm-teller/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// Keep the first 10 frames only.
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack formats the captured call stack.
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus maps the error code to an HTTP status.
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrNotFound:
		return 404
	case e.Code == ErrInvalidParam || e.Code == ErrAlreadyExists || e.Code == ErrNoDeviceAssigned:
		return 400
	case e.Code == ErrPermissionDenied:
		return 403
	case e.Code == ErrTimeout || e.Code == ErrDeviceTimeout || e.Code == ErrWaitTimeout:
		return 408
	case e.Code == ErrFlowBusy || e.Code == ErrCollectionPending || e.Code == ErrFlowState:
		return 409
	case e.Code >= 7000 && e.Code <= 7003:
		return 401
	case e.Code == ErrRateLimitExceeded:
		return 429
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	case e.Code == ErrDeviceUnreachable || e.Code == ErrBankUnreachable:
		return 502
	default:
		return 500
	}
}

// IsRetryable reports whether the error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrTimeout,
		ErrDeviceUnreachable,
		ErrDeviceTimeout,
		ErrDeviceBusy,
		ErrBankUnreachable,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// IsCritical reports whether the error requires operator attention.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrDatabaseConnect,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrDataIntegrity,
		ErrFlowDesynchronized,
		ErrUnlockFailed:
		return true
	default:
		return false
	}
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
