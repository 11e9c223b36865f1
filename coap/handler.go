// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "github.com/coapframework/coapd/internal/wire"

// HandlerFunc is the runtime's internal handler shape once all
// extractors have been curried away by HandlerN below: given a fully
// populated RequestContext, produce a Response or an error. The
// router never sees the user's original function signature, only
// this.
type HandlerFunc func(rc *RequestContext) (Response, error)

// Handler0 adapts a zero-argument handler — one that only needs
// whatever it closes over, or nothing at all.
func Handler0(fn func() (Response, error)) HandlerFunc {
	return func(rc *RequestContext) (Response, error) {
		return fn()
	}
}

// Handler1 adapts a one-argument handler. Arity-indexed constructors
// (Handler1..Handler4) are this framework's rendering of §9's
// "polymorphic over the argument list" handler contract: Go has no
// variadic generics, so each arity is spelled out, and the extractor
// for each position runs in order, short-circuiting the handler call
// on the first failure (§4.4).
func Handler1[A any](e1 Extractor[A], fn func(A) (Response, error)) HandlerFunc {
	return func(rc *RequestContext) (Response, error) {
		a, err := e1(rc)
		if err != nil {
			return Response{}, err
		}
		return fn(a)
	}
}

func Handler2[A, B any](e1 Extractor[A], e2 Extractor[B], fn func(A, B) (Response, error)) HandlerFunc {
	return func(rc *RequestContext) (Response, error) {
		a, err := e1(rc)
		if err != nil {
			return Response{}, err
		}
		b, err := e2(rc)
		if err != nil {
			return Response{}, err
		}
		return fn(a, b)
	}
}

func Handler3[A, B, C any](e1 Extractor[A], e2 Extractor[B], e3 Extractor[C], fn func(A, B, C) (Response, error)) HandlerFunc {
	return func(rc *RequestContext) (Response, error) {
		a, err := e1(rc)
		if err != nil {
			return Response{}, err
		}
		b, err := e2(rc)
		if err != nil {
			return Response{}, err
		}
		c, err := e3(rc)
		if err != nil {
			return Response{}, err
		}
		return fn(a, b, c)
	}
}

func Handler4[A, B, C, D any](e1 Extractor[A], e2 Extractor[B], e3 Extractor[C], e4 Extractor[D], fn func(A, B, C, D) (Response, error)) HandlerFunc {
	return func(rc *RequestContext) (Response, error) {
		a, err := e1(rc)
		if err != nil {
			return Response{}, err
		}
		b, err := e2(rc)
		if err != nil {
			return Response{}, err
		}
		c, err := e3(rc)
		if err != nil {
			return Response{}, err
		}
		d, err := e4(rc)
		if err != nil {
			return Response{}, err
		}
		return fn(a, b, c, d)
	}
}

// Method is one CoAP request method, or the Any wildcard used when
// registering a route (§3's "method-set").
type Method uint8

const (
	MethodGet Method = 1 << iota
	MethodPost
	MethodPut
	MethodDelete
)

// MethodAny matches every request method.
const MethodAny = MethodGet | MethodPost | MethodPut | MethodDelete

func methodFromCode(code wire.Code) (Method, bool) {
	switch code {
	case GET:
		return MethodGet, true
	case POST:
		return MethodPost, true
	case PUT:
		return MethodPut, true
	case Delete:
		return MethodDelete, true
	default:
		return 0, false
	}
}
