package analysiserr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error is a coded failure raised by an analysis stage.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is checks; any *Error with the same code matches.
var (
	ErrValidation      = &Error{Code: Validation}
	ErrDegenerateInput = &Error{Code: DegenerateInput}
	ErrAlignment       = &Error{Code: Alignment}
	ErrUnreachable     = &Error{Code: Unreachable}

	ErrUnsupportedFormat = &Error{Code: UnsupportedFormat}
	ErrLimitExceeded     = &Error{Code: LimitExceeded}
	ErrPermissionDenied  = &Error{Code: PermissionDenied}
	ErrWriteFailed       = &Error{Code: WriteFailed}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	msg := e.Msg
	if msg == "" {
		if entry, ok := catalog[e.Code]; ok {
			msg = entry.Message
		} else {
			msg = string(e.Code)
		}
	}
	b.WriteString(msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Newf builds a coded error for op.
func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to err.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the code carried by err, falling back to ANALYSIS_FAILED.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return AnalysisFailed
}

// Warning records a recovered data-quality condition. Warnings never abort a stage.
type Warning struct {
	Code    Code     `json:"code" yaml:"code"`
	Op      string   `json:"op" yaml:"op"`
	Message string   `json:"message" yaml:"message"`
	Labels  []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// NewWarning builds a DATA_QUALITY warning.
func NewWarning(op, message string, labels ...string) Warning {
	return Warning{Code: DataQuality, Op: op, Message: message, Labels: labels}
}

func (w Warning) String() string {
	s := fmt.Sprintf("%s: %s: %s", w.Code, w.Op, w.Message)
	if len(w.Labels) > 0 {
		s += " [" + strings.Join(w.Labels, ", ") + "]"
	}
	return s
}
