// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "github.com/coapframework/coapd/internal/wire"

// Response and request codes, re-exported so handler code never needs
// to import the internal wire package directly.
const (
	GET    = wire.GET
	POST   = wire.POST
	PUT    = wire.PUT
	Delete = wire.Delete

	Created               = wire.Created
	Deleted               = wire.Deleted
	Valid                 = wire.Valid
	Changed               = wire.Changed
	Content               = wire.Content
	BadRequest            = wire.BadRequest
	Unauthorized          = wire.Unauthorized
	BadOption             = wire.BadOption
	Forbidden             = wire.Forbidden
	NotFound              = wire.NotFound
	MethodNotAllowed      = wire.MethodNotAllowed
	NotAcceptable         = wire.NotAcceptable
	PreconditionFailed    = wire.PreconditionFailed
	RequestEntityTooLarge = wire.RequestEntityTooLarge
	UnsupportedMediaType  = wire.UnsupportedMediaType
	InternalServerError   = wire.InternalServerError
	NotImplemented        = wire.NotImplemented
	ServiceUnavailable    = wire.ServiceUnavailable
)

// Content-format identifiers, per §6.
var (
	TextPlain = wire.TextPlain
	AppJSON   = wire.AppJSON
	AppCBOR   = wire.AppCBOR
)
