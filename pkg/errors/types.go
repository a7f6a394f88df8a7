// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package errors

import (
	"fmt"
	"strings"
)

// Status is a request status code.
type Status uint64

const (
	// OK means the request completed successfully.
	OK Status = 200

	// BadRequest means the request was malformed or cannot be served.
	BadRequest Status = 400

	// NotFound means a record could not be found.
	NotFound Status = 404

	// Expired means the transaction can no longer be completed.
	Expired Status = 407

	// Conflict means the request conflicts with concurrent state.
	Conflict Status = 409

	// InternalError means an internal invariant was violated.
	InternalError Status = 500

	// UnknownError means the cause of the error is not known.
	UnknownError Status = 501

	// EncodingError means encoding or decoding failed.
	EncodingError Status = 502

	// NotReady means the requested state is being produced elsewhere and is
	// not yet available.
	NotReady Status = 504

	// WrongType means a value is not of the expected type.
	WrongType Status = 505

	// LookupFailed means the remote read API could not be reached or
	// returned an unusable response.
	LookupFailed Status = 510

	// MalformedKey means a key structure violates the threshold invariants.
	MalformedKey Status = 511
)

var statusNames = map[Status]string{
	OK:            "ok",
	BadRequest:    "badRequest",
	NotFound:      "notFound",
	Expired:       "expired",
	Conflict:      "conflict",
	InternalError: "internalError",
	UnknownError:  "unknownError",
	EncodingError: "encodingError",
	NotReady:      "notReady",
	WrongType:     "wrongType",
	LookupFailed:  "lookupFailed",
	MalformedKey:  "malformedKey",
}

// String returns the name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status:%d", uint64(s))
}

// StatusByName returns the named status.
func StatusByName(name string) (Status, bool) {
	for s, n := range statusNames {
		if strings.EqualFold(n, name) {
			return s, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, ok := StatusByName(string(b))
	if !ok {
		return fmt.Errorf("%q is not a valid status", b)
	}
	*s = v
	return nil
}

// Error is an error with a status code, an optional cause, and the call
// sites it passed through.
type Error struct {
	Message   string      `json:"message,omitempty"`
	Code      Status      `json:"code,omitempty"`
	Cause     *Error      `json:"cause,omitempty"`
	CallStack []*CallSite `json:"callStack,omitempty"`
}

// CallSite is the location an error was created or wrapped.
type CallSite struct {
	FuncName string `json:"funcName,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int64  `json:"line,omitempty"`
}
