package media

import (
	"errors"
	"fmt"
)

// Code classifies a media pipeline failure.
type Code string

const (
	CodeFileTooLarge        Code = "FileTooLarge"
	CodeUnsupportedType     Code = "UnsupportedType"
	CodeUploadFailed        Code = "UploadFailed"
	CodeUploadCancelled     Code = "UploadCancelled"
	CodeURLResolutionFailed Code = "UrlResolutionFailed"
	CodeMediaLoadError      Code = "MediaLoadError"
)

// Sentinels for errors.Is; every *Error matches the sentinel of its code.
var (
	ErrFileTooLarge        = &Error{Code: CodeFileTooLarge}
	ErrUnsupportedType     = &Error{Code: CodeUnsupportedType}
	ErrUploadFailed        = &Error{Code: CodeUploadFailed}
	ErrUploadCancelled     = &Error{Code: CodeUploadCancelled}
	ErrURLResolutionFailed = &Error{Code: CodeURLResolutionFailed}
	ErrMediaLoad           = &Error{Code: CodeMediaLoadError}
)

// Error is a media pipeline failure with a user-presentable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code of a media error, or "" for foreign errors.
func CodeOf(err error) Code {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsValidation reports whether err is a local pre-flight rejection.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeFileTooLarge, CodeUnsupportedType:
		return true
	default:
		return false
	}
}
