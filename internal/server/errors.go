package server

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies failures reported by connections and the server.
type ErrorCode string

const (
	CodeProtocol       ErrorCode = "PROTOCOL_ERROR"
	CodeNotWritable    ErrorCode = "NOT_WRITABLE"
	CodeInvalidEvent   ErrorCode = "INVALID_EVENT"
	CodeInvalidMessage ErrorCode = "INVALID_MESSAGE"
	CodeBufferFull     ErrorCode = "BUFFER_FULL"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeTransport      ErrorCode = "TRANSPORT_ERROR"
	CodeClosed         ErrorCode = "CLOSED"
)

func (c ErrorCode) text() string {
	switch c {
	case CodeProtocol:
		return "protocol error"
	case CodeNotWritable:
		return "connection not writable"
	case CodeInvalidEvent:
		return "invalid event type"
	case CodeInvalidMessage:
		return "invalid message"
	case CodeBufferFull:
		return "send buffer full"
	case CodeRateLimited:
		return "rate limit exceeded"
	case CodeTransport:
		return "transport error"
	case CodeClosed:
		return "connection closed"
	default:
		return strings.ToLower(string(c))
	}
}

// Error is the error type returned and reported by this package. Two
// errors match under errors.Is when their codes are equal, so callers can
// compare against the Err* sentinels below.
type Error struct {
	Code ErrorCode
	// Op names the operation that failed, such as "send" or "read".
	Op string
	// Key is the offending event key or message type, when there is one.
	Key string
	Err error
}

// Sentinels for use with errors.Is.
var (
	ErrProtocol       = &Error{Code: CodeProtocol}
	ErrNotWritable    = &Error{Code: CodeNotWritable}
	ErrInvalidEvent   = &Error{Code: CodeInvalidEvent}
	ErrInvalidMessage = &Error{Code: CodeInvalidMessage}
	ErrBufferFull     = &Error{Code: CodeBufferFull}
	ErrRateLimited    = &Error{Code: CodeRateLimited}
	ErrTransport      = &Error{Code: CodeTransport}
	ErrClosed         = &Error{Code: CodeClosed}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("server: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Code.text())
	if e.Key != "" {
		fmt.Fprintf(&b, ": %q", e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// IsCode reports whether err carries an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
