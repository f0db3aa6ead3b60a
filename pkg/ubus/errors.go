package ubus

import (
	"errors"
	"fmt"
)

// Error kinds returned by Client. Match them with errors.Is.
var (
	ErrUnreachable       = errors.New("ubus: device unreachable")
	ErrAuthExpired       = errors.New("ubus: session expired")
	ErrPermissionDenied  = errors.New("ubus: permission denied")
	ErrNotAllowed        = errors.New("ubus: not allowed")
	ErrUnsupportedObject = errors.New("ubus: object or method not found")
	ErrProtocol          = errors.New("ubus: protocol error")
)

// JSON-RPC error codes used by rpcd.
const (
	codeSessionExpired = -32002
	codeObjectNotFound = -32000
)

// ubus status codes carried in result[0].
const (
	StatusOK               = 0
	StatusPermissionDenied = 6
	StatusNotAllowed       = 8
)

// Error describes a failed ubus exchange.
type Error struct {
	Kind      error
	Code      int
	Message   string
	Subsystem string
	Method    string
	Err       error
}

func (e *Error) Error() string {
	target := e.Subsystem
	if e.Method != "" {
		target += "." + e.Method
	}

	msg := e.Kind.Error()
	if target != "" {
		msg = fmt.Sprintf("%s (%s)", msg, target)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Code != 0 {
		msg += fmt.Sprintf(": code %d", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// statusError maps a non-zero ubus status code onto the error taxonomy.
func statusError(code int, subsystem, method string) error {
	kind := ErrProtocol
	switch code {
	case StatusPermissionDenied:
		kind = ErrPermissionDenied
	case StatusNotAllowed:
		kind = ErrNotAllowed
	}
	return &Error{Kind: kind, Code: code, Subsystem: subsystem, Method: method}
}

// rpcError maps a JSON-RPC error object onto the error taxonomy.
func rpcError(obj *rpcErrorObject, subsystem, method string) error {
	kind := ErrProtocol
	switch obj.Code {
	case codeSessionExpired:
		kind = ErrAuthExpired
	case codeObjectNotFound:
		kind = ErrUnsupportedObject
	}
	return &Error{Kind: kind, Code: obj.Code, Message: obj.Message, Subsystem: subsystem, Method: method}
}
