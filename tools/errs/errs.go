package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stable error codes surfaced in the admin API envelope.
const (
	CodeInternal     = 500
	CodeBadEvent     = 1001 // schema contract violation on an incoming event
	CodeUnknownKind  = 1002
	CodeStoreTimeout = 1101
	CodeNotFound     = 1404
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Msg, e.Detail)
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Precondition marks a schema/contract violation. These are programmer errors
// and must fail loud at the boundary, never be swallowed downstream.
func Precondition(msg string) error {
	return NewCodeError(CodeBadEvent, msg)
}

func IsPrecondition(err error) bool {
	var ce *CodeError
	return errors.As(err, &ce) && ce.Code == CodeBadEvent
}

func New(msg string) error { return errors.New(msg) }

func Wrap(err error, msg string) error { return errors.Wrap(err, msg) }

// WrapMsg wraps err with a message plus alternating key/value context pairs.
func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	for i := 0; i+1 < len(kv); i += 2 {
		msg += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return errors.Wrap(err, msg)
}

func Unwrap(err error) error { return errors.Cause(err) }
