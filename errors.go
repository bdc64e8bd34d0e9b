package aicmd

import "errors"

var (
	// ErrConfig reports an unknown provider or otherwise unusable configuration.
	// Fatal to the request and never retried.
	ErrConfig = errors.New("configuration error")

	// ErrCredentialMissing reports that every credential source was exhausted.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrBackend reports a network failure, timeout or backend error envelope.
	ErrBackend = errors.New("backend error")

	// ErrEmptyResult reports a successful call that produced no usable command.
	ErrEmptyResult = errors.New("no suggestion")
)

// Wire codes carried in Error.Code.
const (
	CodeConfig            = "config_error"
	CodeCredentialMissing = "credential_missing"
	CodeBackend           = "backend_error"
	CodeEmptyResult       = "empty_result"
	CodeInternal          = "internal_error"
)

// ErrorCode maps err onto its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return CodeConfig
	case errors.Is(err, ErrCredentialMissing):
		return CodeCredentialMissing
	case errors.Is(err, ErrBackend):
		return CodeBackend
	case errors.Is(err, ErrEmptyResult):
		return CodeEmptyResult
	default:
		return CodeInternal
	}
}

// NewError builds the IPC error for err, or nil when err is nil.
func NewError(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: ErrorCode(err), Message: err.Error()}
}
