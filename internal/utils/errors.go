package utils

import (
	"errors"
	"fmt"
)

// AppError wraps a pipeline operation, a human-facing message, and the
// underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// AppErrorOp extracts the operation from the first AppError in err's chain,
// or an empty string when there is none. Log sites use it to tag rejections
// with the pipeline stage that refused the window.
func AppErrorOp(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Op
	}
	return ""
}
