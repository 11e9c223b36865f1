// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	"github.com/coapframework/coapd/internal/wire"
)

// Response is the shaped CoAP response of §4.4: a status code plus an
// optional content-format and body. Handlers build one with the
// constructors below rather than returning a bare value the runtime
// would have to introspect — Go has no return-type polymorphism, so
// this is the idiomatic rendering of the specification's "a value
// with a declared content-format / a bare status / a (status, body)
// tuple" response contract.
type Response struct {
	Code          wire.Code
	ContentFormat *uint32
	Body          []byte
}

// EmptyStatus builds a response carrying code and no payload — the
// "bare status code" case.
func EmptyStatus(code wire.Code) Response {
	return Response{Code: code}
}

// RawBody builds a response carrying code and an uninterpreted byte
// payload — the "(status, body)" case when the body is already bytes.
func RawBody(code wire.Code, body []byte) Response {
	return Response{Code: code, Body: body}
}

// JSONBody serializes v as JSON and tags the response
// application/json, the "value with a declared content-format" case
// for JSON-producing handlers.
func JSONBody(code wire.Code, v any) (Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{}, Statusf(InternalServerError, "encode json response: %w", err)
	}
	fmt := uint32(wire.AppJSON)
	return Response{Code: code, ContentFormat: &fmt, Body: body}, nil
}

// CBORBody serializes v as CBOR and tags the response
// application/cbor.
func CBORBody(code wire.Code, v any) (Response, error) {
	body, err := cbor.Marshal(v)
	if err != nil {
		return Response{}, Statusf(InternalServerError, "encode cbor response: %w", err)
	}
	fmt := uint32(wire.AppCBOR)
	return Response{Code: code, ContentFormat: &fmt, Body: body}, nil
}

// options renders the response's content-format, if any, as a wire
// option list; the caller appends any further options (e.g. Observe).
func (r Response) options() []wire.Option {
	if r.ContentFormat == nil {
		return nil
	}
	return []wire.Option{{ID: wire.OptionContentFormat, Value: wire.EncodeUint(*r.ContentFormat)}}
}
