// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var trackLocation = true

// EnableLocationTracking enables or disables recording the call site of
// errors.
func EnableLocationTracking(enable bool) { trackLocation = enable }

// Success returns true if the status represents success.
func (s Status) Success() bool { return s < 300 }

// IsKnownError returns true if the status is non-zero and not UnknownError.
func (s Status) IsKnownError() bool { return s != 0 && s != UnknownError }

// IsClientError returns true if the status is a client error.
func (s Status) IsClientError() bool { return s >= 400 && s < 500 }

// IsServerError returns true if the status is a server error.
func (s Status) IsServerError() bool { return s >= 500 }

// Error implements error.
func (s Status) Error() string { return s.String() }

// Skip skips N frames when locating the call site.
func (s Status) Skip(n int) Factory {
	return Factory{Skip: n, Code: s}
}

func (s Status) Wrap(err error) error {
	return s.Skip(1).Wrap(err)
}

func (s Status) With(v ...interface{}) *Error {
	return s.Skip(1).With(v...)
}

func (s Status) WithFormat(format string, args ...interface{}) *Error {
	return s.Skip(1).WithFormat(format, args...)
}

func (s Status) WithCauseAndFormat(cause error, format string, args ...interface{}) *Error {
	return s.Skip(1).WithCauseAndFormat(cause, format, args...)
}

type Factory struct {
	Skip int
	Code Status
}

func (f Factory) Wrap(err error) error {
	if err == nil {
		// The return type must be `error` - otherwise this returns statement
		// can cause strange errors
		return nil
	}

	// If err is an Error and we're not going to add anything, return it
	if !trackLocation && !f.Code.IsKnownError() {
		if _, ok := err.(*Error); ok {
			return err
		}
	}

	e := f.new()
	e.setCause(convert(err))
	return e
}

func (f Factory) With(v ...interface{}) *Error {
	e := f.new()
	e.Message = fmt.Sprint(v...)
	return e
}

func (f Factory) WithCauseAndFormat(cause error, format string, args ...interface{}) *Error {
	e := f.new()
	e.Message = fmt.Sprintf(format, args...)
	e.setCause(convert(cause))
	return e
}

func (f Factory) WithFormat(format string, args ...interface{}) *Error {
	err := fmt.Errorf(format, args...)

	u, ok := err.(interface{ Unwrap() error })
	if ok {
		e := f.new()
		e.Message = err.Error()
		e.setCause(convert(u.Unwrap()))
		return e
	}

	e := convert(err)
	e.Code = f.Code
	e.recordCallSite(2 + f.Skip)
	return e
}

func (f Factory) new() *Error {
	e := new(Error)
	e.Code = f.Code
	e.recordCallSite(3 + f.Skip)
	return e
}

func convert(err error) *Error {
	if x := (*Error)(nil); errors.As(err, &x) {
		return x
	}
	var msg string
	if err == nil {
		msg = "(nil)"
	} else {
		msg = err.Error()
	}
	if x := Status(0); errors.As(err, &x) {
		return &Error{Code: x, Message: msg}
	}

	e := &Error{
		Code:    UnknownError,
		Message: msg,
	}

	if u, ok := err.(interface{ Unwrap() error }); ok {
		if err := u.Unwrap(); err != nil {
			e.setCause(convert(err))
		}
	}

	return e
}

func (e *Error) setCause(f *Error) {
	e.Cause = f
	if f == nil {
		return
	}

	if e.Code.IsKnownError() {
		return
	}

	if e.Message != "" {
		// Copy the code
		e.Code = f.Code
		return
	}

	// Inherit everything
	cs := e.CallStack
	*e = *f
	e.CallStack = append(cs, f.CallStack...)
}

func (e *Error) recordCallSite(depth int) {
	if !trackLocation {
		return
	}

	pc, file, line, ok := runtime.Caller(depth)
	if !ok {
		return
	}

	cs := &CallSite{File: file, Line: int64(line)}
	fn := runtime.FuncForPC(pc)
	if fn != nil {
		cs.FuncName = fn.Name()
	}

	e.CallStack = append(e.CallStack, cs)
}

func (e *Error) CodeID() uint64 {
	return uint64(e.Code)
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Code
}

func (e *Error) Format(f fmt.State, verb rune) {
	if f.Flag('+') {
		_, _ = f.Write([]byte(e.Print()))
	} else {
		_, _ = f.Write([]byte(e.Error()))
	}
}

// Print prints an error message plus its call stack and causal chain. Compound
// errors are usually formatted as '<description>: <cause>'. Print will print
// this out as:
//
//	<description>:
//	<call stack>
//
//	<cause>
//	<call stack>
func (e *Error) Print() string {
	// If the error has no call stack just return the message
	if e.CallStack == nil {
		return e.Error()
	}

	var str []string
	for e != nil {
		// Remove the suffix if the error is compound, as per the method
		// description
		msg := e.Message
		if msg == "" {
			msg = e.Code.String()
		} else if e.Cause != nil {
			msg = strings.TrimSuffix(msg, e.Cause.Message)
		}

		str = append(str, msg+"\n"+e.printCallstack())
		e = e.Cause
	}
	return strings.Join(str, "\n")
}

func (e *Error) printCallstack() string {
	var str string
	for _, cs := range e.CallStack {
		str += fmt.Sprintf("%s\n    %s:%d\n", cs.FuncName, cs.File, cs.Line)
	}
	return str
}

func (e *Error) Is(target error) bool {
	switch f := target.(type) {
	case *Error:
		if e.Code == f.Code {
			return true
		}
	case Status:
		if e.Code == f {
			return true
		}
	}
	if e.Cause != nil {
		return e.Cause.Is(target)
	}
	return false
}
