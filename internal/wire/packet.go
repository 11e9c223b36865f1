// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the CoAP (RFC 7252) datagram codec: the
// out-of-scope "wire codec" collaborator described by the framework's
// specification. Callers above this package never touch a raw byte
// slice; they exchange Packet values.
//
// Option and response-code identifiers are the same numeric constants
// github.com/plgd-dev/go-coap/v2/message and message/codes define, so a
// Packet interops with any other CoAP stack on the wire, but the
// marshal/unmarshal loop itself is implemented here rather than
// delegated to that module, whose session/mux machinery this
// framework deliberately reimplements on its own terms (see
// DESIGN.md).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
)

// Type is the CoAP message type (RFC 7252 §3).
type Type uint8

const (
	Confirmable Type = iota
	NonConfirmable
	Acknowledgement
	Reset
)

func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return "UNKNOWN"
	}
}

// Option is a single CoAP option as it appears on the wire: a numeric
// ID and its opaque value. Repeated options (Uri-Path, Uri-Query) are
// represented as repeated Option entries with the same ID.
type Option struct {
	ID    message.OptionID
	Value []byte
}

// Code is the CoAP method/response code type, re-exported so callers
// never need to import message/codes directly.
type Code = codes.Code

// Well-known option IDs, re-exported from message so call sites never
// need to import both packages.
const (
	OptionIfMatch       = message.IfMatch
	OptionURIHost       = message.URIHost
	OptionETag          = message.ETag
	OptionIfNoneMatch   = message.IfNoneMatch
	OptionObserve       = message.Observe
	OptionURIPort       = message.URIPort
	OptionLocationPath  = message.LocationPath
	OptionURIPath       = message.URIPath
	OptionContentFormat = message.ContentFormat
	OptionMaxAge        = message.MaxAge
	OptionURIQuery      = message.URIQuery
	OptionAccept        = message.Accept
	OptionLocationQuery = message.LocationQuery
	OptionSize1         = message.Size1
)

// Media types, re-exported from message.
var (
	TextPlain = message.TextPlain
	AppJSON   = message.AppJSON
	AppCBOR   = message.AppCBOR
)

// Response/request codes, re-exported from message/codes.
const (
	GET    = codes.GET
	POST   = codes.POST
	PUT    = codes.PUT
	Delete = codes.DELETE

	Created               = codes.Created
	Deleted               = codes.Deleted
	Valid                 = codes.Valid
	Changed               = codes.Changed
	Content               = codes.Content
	BadRequest            = codes.BadRequest
	Unauthorized          = codes.Unauthorized
	BadOption             = codes.BadOption
	Forbidden             = codes.Forbidden
	NotFound              = codes.NotFound
	MethodNotAllowed       = codes.MethodNotAllowed
	NotAcceptable          = codes.NotAcceptable
	PreconditionFailed     = codes.PreconditionFailed
	RequestEntityTooLarge  = codes.RequestEntityTooLarge
	UnsupportedMediaType   = codes.UnsupportedMediaType
	InternalServerError    = codes.InternalServerError
	NotImplemented         = codes.NotImplemented
	ServiceUnavailable     = codes.ServiceUnavailable
)

// Packet is the framework's structured view of a CoAP message (§3 of
// the specification's data model): type, code, message ID, token,
// ordered options and payload.
type Packet struct {
	Type      Type
	Code      codes.Code
	MessageID uint16
	Token     []byte
	Options   []Option
	Payload   []byte
}

var (
	// ErrMalformed is returned for any datagram that is not a
	// well-formed CoAP message. Per the specification's error
	// taxonomy (§7, kind 1) the caller must drop it silently, never
	// surface it to a peer.
	ErrMalformed = errors.New("wire: malformed coap datagram")
	ErrTokenSize = errors.New("wire: token exceeds 8 bytes")
)

const (
	version      = 1
	payloadMarker = 0xFF
)

// Encode serializes a Packet into a CoAP datagram.
func Encode(p Packet) ([]byte, error) {
	if len(p.Token) > 8 {
		return nil, ErrTokenSize
	}
	buf := make([]byte, 4, 4+len(p.Token)+32+len(p.Payload)+1)
	buf[0] = byte(version<<6) | byte(p.Type)<<4 | byte(len(p.Token))
	buf[1] = byte(p.Code)
	binary.BigEndian.PutUint16(buf[2:4], p.MessageID)
	buf = append(buf, p.Token...)

	opts := make([]Option, len(p.Options))
	copy(opts, p.Options)
	sortOptions(opts)

	var prevID message.OptionID
	for _, o := range opts {
		delta := int(o.ID) - int(prevID)
		if delta < 0 {
			return nil, fmt.Errorf("wire: options not sorted: %d after %d", o.ID, prevID)
		}
		length := len(o.Value)
		db, dext := nibble(delta)
		lb, lext := nibble(length)
		buf = append(buf, byte(db<<4)|byte(lb))
		buf = append(buf, dext...)
		buf = append(buf, lext...)
		buf = append(buf, o.Value...)
		prevID = o.ID
	}

	if len(p.Payload) > 0 {
		buf = append(buf, payloadMarker)
		buf = append(buf, p.Payload...)
	}
	return buf, nil
}

// Decode parses a CoAP datagram into a Packet. Any malformation
// (short header, bad token length, truncated option, dangling
// payload marker) yields ErrMalformed; the session layer drops such
// datagrams without a response, per §7 kind 1.
func Decode(data []byte) (Packet, error) {
	if len(data) < 4 {
		return Packet{}, ErrMalformed
	}
	ver := data[0] >> 6
	if ver != version {
		return Packet{}, ErrMalformed
	}
	typ := Type((data[0] >> 4) & 0x3)
	tkl := int(data[0] & 0xF)
	if tkl > 8 {
		return Packet{}, ErrMalformed
	}
	p := Packet{
		Type:      typ,
		Code:      codes.Code(data[1]),
		MessageID: binary.BigEndian.Uint16(data[2:4]),
	}
	off := 4
	if len(data) < off+tkl {
		return Packet{}, ErrMalformed
	}
	if tkl > 0 {
		p.Token = append([]byte(nil), data[off:off+tkl]...)
	}
	off += tkl

	var curID message.OptionID
	for off < len(data) {
		if data[off] == payloadMarker {
			off++
			if off >= len(data) {
				// RFC 7252 §3.1: a payload marker with no payload
				// following it is a format error, not an empty body.
				return Packet{}, ErrMalformed
			}
			p.Payload = append([]byte(nil), data[off:]...)
			return p, nil
		}
		db := data[off] >> 4
		lb := data[off] & 0xF
		off++
		delta, n, err := extNibble(db, data, off)
		if err != nil {
			return Packet{}, err
		}
		off += n
		length, n, err := extNibble(lb, data, off)
		if err != nil {
			return Packet{}, err
		}
		off += n
		if len(data) < off+length {
			return Packet{}, ErrMalformed
		}
		curID += message.OptionID(delta)
		p.Options = append(p.Options, Option{ID: curID, Value: append([]byte(nil), data[off:off+length]...)})
		off += length
	}
	return p, nil
}

func sortOptions(opts []Option) {
	for i := 1; i < len(opts); i++ {
		for j := i; j > 0 && opts[j-1].ID > opts[j].ID; j-- {
			opts[j-1], opts[j] = opts[j], opts[j-1]
		}
	}
}

// nibble encodes a delta/length value into its 4-bit nibble plus any
// extended bytes, per RFC 7252 §3.1's option-header encoding table.
func nibble(v int) (int, []byte) {
	switch {
	case v < 13:
		return v, nil
	case v < 269:
		return 13, []byte{byte(v - 13)}
	default:
		ext := v - 269
		return 14, []byte{byte(ext >> 8), byte(ext)}
	}
}

func extNibble(nib byte, data []byte, off int) (int, int, error) {
	switch nib {
	case 15:
		return 0, 0, ErrMalformed
	case 13:
		if len(data) < off+1 {
			return 0, 0, ErrMalformed
		}
		return int(data[off]) + 13, 1, nil
	case 14:
		if len(data) < off+2 {
			return 0, 0, ErrMalformed
		}
		return int(binary.BigEndian.Uint16(data[off:off+2])) + 269, 2, nil
	default:
		return int(nib), 0, nil
	}
}

// EncodeUint encodes a CoAP "uint" option value (Content-Format,
// Observe, Max-Age, ...): the minimal big-endian byte sequence with no
// leading zero byte, per RFC 7252 §3.2.
func EncodeUint(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// DecodeUint decodes a CoAP "uint" option value.
func DecodeUint(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}
