// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"errors"
	"fmt"

	"github.com/plgd-dev/go-coap/v2/message/codes"
)

// StatusError is a handler or extractor failure that must surface as
// a specific CoAP response code rather than falling through to 5.00,
// per §7 kind 3 and kind 4's "if the handler signals a status code,
// that code is returned verbatim" rule.
type StatusError struct {
	Code codes.Code
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("coap: status %s", e.Code)
	}
	return fmt.Sprintf("coap: status %s: %s", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Status wraps err (or a bare message if err is nil) with an explicit
// response code for a handler to return.
func Status(code codes.Code, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

// Statusf builds a StatusError from a format string.
func Statusf(code codes.Code, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Err: fmt.Errorf(format, args...)}
}

// statusOf maps any error returned from extraction or a handler to a
// response code, per §7's taxonomy: a StatusError is returned
// verbatim, anything else is an unrecoverable internal error (5.00).
func statusOf(err error) codes.Code {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return InternalServerError
}
