// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/uuid"

	"github.com/coapframework/coapd/internal/wire"
)

// Extractor is one argument's extraction rule against a
// RequestContext, per §4.4's table. Handlers are built by composing
// Extractor values with HandlerN (handler.go); extraction runs in
// argument order and the first failure short-circuits the call,
// exactly as §4.4 specifies.
type Extractor[T any] func(rc *RequestContext) (T, error)

// Path extracts a captured path segment by name and parses it as T.
// Supported T: string, int, int64, uuid.UUID — the "string, integer,
// UUID-shaped" set §4.4 names. A name absent from the route template
// is not checked when the route is registered; it is reported per
// request as a 4.00 Bad Request, as is a value present but
// unparsable as T.
func Path[T any](name string) Extractor[T] {
	return func(rc *RequestContext) (T, error) {
		var zero T
		raw, ok := rc.capture(name)
		if !ok {
			return zero, Statusf(BadRequest, "path parameter %q not captured", name)
		}
		v, err := parsePathValue[T](raw)
		if err != nil {
			return zero, Statusf(BadRequest, "path parameter %q: %w", name, err)
		}
		return v, nil
	}
}

func parsePathValue[T any](raw string) (T, error) {
	var zero T
	switch any(zero).(type) {
	case string:
		return any(raw).(T), nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return zero, err
		}
		return any(n).(T), nil
	case int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return zero, err
		}
		return any(n).(T), nil
	case uuid.UUID:
		u, err := uuid.FromString(raw)
		if err != nil {
			return zero, err
		}
		return any(u).(T), nil
	default:
		return zero, fmt.Errorf("unsupported Path[%T]", zero)
	}
}

// JSON deserializes the request payload as T, requiring
// Content-Format application/json or no content-format at all, per
// §4.4's table.
func JSON[T any]() Extractor[T] {
	return func(rc *RequestContext) (T, error) {
		var zero T
		if rc.contentFmt != nil && *rc.contentFmt != uint32(wire.AppJSON) {
			return zero, Status(UnsupportedMediaType, fmt.Errorf("expected application/json"))
		}
		if err := checkPayloadSize(rc); err != nil {
			return zero, err
		}
		var v T
		if err := json.Unmarshal(rc.payload, &v); err != nil {
			return zero, Statusf(BadRequest, "decode json body: %w", err)
		}
		return v, nil
	}
}

// CBOR deserializes the request payload as T, requiring
// Content-Format application/cbor or no content-format at all.
func CBOR[T any]() Extractor[T] {
	return func(rc *RequestContext) (T, error) {
		var zero T
		if rc.contentFmt != nil && *rc.contentFmt != uint32(wire.AppCBOR) {
			return zero, Status(UnsupportedMediaType, fmt.Errorf("expected application/cbor"))
		}
		if err := checkPayloadSize(rc); err != nil {
			return zero, err
		}
		var v T
		if err := cbor.Unmarshal(rc.payload, &v); err != nil {
			return zero, Statusf(BadRequest, "decode cbor body: %w", err)
		}
		return v, nil
	}
}

// checkPayloadSize implements §7 kind 3's 4.13 Request Entity Too
// Large, the extractor-level bound payload.rs enforces per-type
// (MAX_JSON_PAYLOAD_SIZE/MAX_CBOR_PAYLOAD_SIZE) against this
// framework's single Config.MaxMessageSize knob. Zero means unbounded
// (RequestContext.maxPayload defaults to 0 when a Router has no bound
// configured).
func checkPayloadSize(rc *RequestContext) error {
	if rc.maxPayload > 0 && len(rc.payload) > rc.maxPayload {
		return Statusf(RequestEntityTooLarge, "payload of %d bytes exceeds max %d", len(rc.payload), rc.maxPayload)
	}
	return nil
}

// Bytes extracts the raw, undecoded payload. Never fails.
func Bytes() Extractor[[]byte] {
	return func(rc *RequestContext) ([]byte, error) {
		return rc.payload, nil
	}
}

// State extracts the server-wide value passed as the state argument
// of NewServer/NewRouter, cast to S. Never fails if the configured
// state is assignable to S; otherwise it is a mistake the caller
// made, surfaced on every invocation as a 5.00 rather than a silent
// zero value.
func State[S any]() Extractor[S] {
	return func(rc *RequestContext) (S, error) {
		var zero S
		if rc.state == nil {
			return zero, Statusf(InternalServerError, "no server state configured for State[%T]", zero)
		}
		v, ok := rc.state.(S)
		if !ok {
			return zero, Statusf(InternalServerError, "server state is not assignable to %T", zero)
		}
		return v, nil
	}
}

// Identity extracts the peer_identity bytes of §4.1. Never fails.
func Identity() Extractor[[]byte] {
	return func(rc *RequestContext) ([]byte, error) {
		return rc.peerIdentity, nil
	}
}

// Observe extracts the decoded Observe option intent. Never fails.
func Observe() Extractor[ObserveFlag] {
	return func(rc *RequestContext) (ObserveFlag, error) {
		return rc.observe, nil
	}
}
