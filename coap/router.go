// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"
	"fmt"

	"github.com/coapframework/coapd/internal/observe"
	"github.com/coapframework/coapd/internal/session"
	"github.com/coapframework/coapd/internal/wire"
)

type route struct {
	methods  Method
	template routeTemplate
	handler  HandlerFunc

	observable    bool
	notifyHandler HandlerFunc
}

// Router compiles a set of (method, template, handler) registrations
// into the matcher of §4.3, and doubles as the top-level request
// dispatcher the session manager drives (it implements
// session.Dispatcher). Build it with NewRouter, register routes, then
// call Build once; the compiled matcher is immutable after that, per
// §3's invariant.
type Router struct {
	routes         []*route
	state          any
	engine         *observe.Engine
	built          bool
	maxPayloadSize int
}

func NewRouter(state any, engine *observe.Engine) *Router {
	return &Router{state: state, engine: engine}
}

// SetMaxPayloadSize bounds the payload JSON/CBOR extractors accept
// (§4.4/§7 kind 3's 4.13 Request Entity Too Large), mirroring
// payload.rs's MAX_JSON_PAYLOAD_SIZE/MAX_CBOR_PAYLOAD_SIZE checks
// against this framework's single Config.MaxMessageSize knob (§6).
// Zero (the default) leaves payloads unbounded. Called by Server
// before Build.
func (r *Router) SetMaxPayloadSize(n int) { r.maxPayloadSize = n }

// Add registers a plain (method-set, template, handler) route, per
// §4.3's build-time contract.
func (r *Router) Add(methods Method, template string, h HandlerFunc) error {
	if r.built {
		return fmt.Errorf("coap: router already built")
	}
	if err := validateTemplate(template); err != nil {
		return err
	}
	tmpl := compileTemplate(template)
	for _, existing := range r.routes {
		if existing.methods&methods != 0 && existing.template.conflictsWith(tmpl) {
			return fmt.Errorf("coap: template %q conflicts with %q", template, existing.template.raw)
		}
	}
	r.routes = append(r.routes, &route{methods: methods, template: tmpl, handler: h})
	return nil
}

// AddObserve registers an observe pair on template, per §4.3's
// observe dispatch: getHandler answers a GET (with or without
// Observe), notifyHandler produces the body for every subsequent
// notification.
func (r *Router) AddObserve(template string, getHandler, notifyHandler HandlerFunc) error {
	if r.built {
		return fmt.Errorf("coap: router already built")
	}
	if err := validateTemplate(template); err != nil {
		return err
	}
	tmpl := compileTemplate(template)
	for _, existing := range r.routes {
		if existing.methods&MethodGet != 0 && existing.template.conflictsWith(tmpl) {
			return fmt.Errorf("coap: template %q conflicts with %q", template, existing.template.raw)
		}
	}
	r.routes = append(r.routes, &route{
		methods:       MethodGet,
		template:      tmpl,
		handler:       getHandler,
		observable:    true,
		notifyHandler: notifyHandler,
	})
	return nil
}

// Build freezes the route table. Subsequent Add/AddObserve calls
// fail.
func (r *Router) Build() *Router {
	r.built = true
	return r
}

// notifyFuncFor returns the observe.NotifyFunc the engine calls to
// invoke a path's notify-handler, closing over this router's route
// table so the engine never needs to know about routes itself.
func (r *Router) notifyFuncFor() observe.NotifyFunc {
	return func(ctx context.Context, path string) (wire.Code, []wire.Option, []byte, error) {
		for _, rt := range r.routes {
			if !rt.observable || rt.template.raw != path {
				continue
			}
			rc := &RequestContext{ctx: ctx, path: path, captures: map[string]string{}, state: r.state, maxPayload: r.maxPayloadSize}
			resp, err := rt.notifyHandler(rc)
			if err != nil {
				return 0, nil, nil, err
			}
			return resp.Code, resp.options(), resp.Body, nil
		}
		return 0, nil, nil, fmt.Errorf("coap: no observable route registered for %q", path)
	}
}

// Dispatch implements session.Dispatcher: route the packet, run its
// handler (plus any observe bookkeeping), and produce a response.
func (r *Router) Dispatch(ctx context.Context, peerIdentity []byte, pkt wire.Packet) <-chan session.Outgoing {
	out := make(chan session.Outgoing, 1)
	go func() {
		out <- r.handle(ctx, peerIdentity, pkt)
	}()
	return out
}

func (r *Router) handle(ctx context.Context, peerIdentity []byte, pkt wire.Packet) session.Outgoing {
	segments, contentFmt, observeOpt := parseOptions(pkt.Options)

	method, ok := methodFromCode(pkt.Code)
	if !ok {
		return outgoing(BadRequest, nil, nil)
	}

	rt, captures, found := r.matchRoute(segments, method)
	if !found {
		return outgoing(NotFound, nil, nil)
	}
	if rt.methods&method == 0 {
		return outgoing(MethodNotAllowed, nil, nil)
	}

	path := rt.template.raw
	rc := &RequestContext{
		ctx:          ctx,
		peerIdentity: peerIdentity,
		method:       pkt.Code,
		path:         path,
		captures:     captures,
		contentFmt:   contentFmt,
		observe:      observeOpt,
		payload:      pkt.Payload,
		state:        r.state,
		maxPayload:   r.maxPayloadSize,
	}

	resp, err := rt.handler(rc)
	if err != nil {
		return outgoing(statusOf(err), nil, nil)
	}

	options := resp.options()
	respCode := resp.Code
	respBody := resp.Body
	if rt.observable && method == MethodGet && observeOpt != ObserveNone {
		respCode, options, respBody = r.applyObserveBookkeeping(path, peerIdentity, pkt.Token, observeOpt, resp.Code, options, resp.Body)
	}
	if !rt.observable || method != MethodGet {
		if method == MethodPost || method == MethodPut || method == MethodDelete {
			r.triggerIfObserved(ctx, path)
		}
	}

	return outgoing(respCode, options, respBody)
}

// applyObserveBookkeeping implements §4.5's registration/
// deregistration steps once the get-handler has already produced its
// response code and body. A store failure on registration (§7 kind 5)
// overrides the handler's 2.xx with 5.03 Service Unavailable and drops
// the representation rather than emitting a success the client was
// never actually subscribed to.
func (r *Router) applyObserveBookkeeping(path string, peerIdentity, token []byte, flag ObserveFlag, code wire.Code, options []wire.Option, body []byte) (wire.Code, []wire.Option, []byte) {
	switch flag {
	case ObserveRegister:
		if !isSuccess(code) {
			return code, options, body
		}
		if _, err := r.engine.Register(path, peerIdentity, token); err != nil {
			return ServiceUnavailable, nil, nil
		}
		return code, append([]wire.Option{{ID: wire.OptionObserve, Value: wire.EncodeUint(0)}}, options...), body
	case ObserveDeregister:
		r.engine.Deregister(path, peerIdentity)
		return code, options, body
	default:
		return code, options, body
	}
}

// triggerIfObserved asks the engine to fan out a notification for
// path if anyone is subscribed; the engine itself is the one that
// checks whether there are any subscribers before doing real work.
func (r *Router) triggerIfObserved(ctx context.Context, path string) {
	if r.engine == nil {
		return
	}
	r.engine.Trigger(ctx, path)
}

// matchRoute selects among every route whose template matches
// segments the one whose method-set actually includes method, per
// §4.3: a template match alone is not enough to pick a route when
// two registrations (e.g. an AddObserve GET and a plain POST/PUT)
// share the same template, which Add/AddObserve's conflict check
// permits as long as their method-sets don't overlap. If no
// method-matching route is found, the first template match is
// returned anyway so the caller can still distinguish 4.04 (no
// template matched at all) from 4.05 (a template matched, wrong
// method).
func (r *Router) matchRoute(segments []string, method Method) (*route, map[string]string, bool) {
	var fallback *route
	var fallbackCaptures map[string]string
	for _, rt := range r.routes {
		captures, ok := rt.template.match(segments)
		if !ok {
			continue
		}
		if rt.methods&method != 0 {
			return rt, captures, true
		}
		if fallback == nil {
			fallback = rt
			fallbackCaptures = captures
		}
	}
	if fallback != nil {
		return fallback, fallbackCaptures, true
	}
	return nil, nil, false
}

func isSuccess(code wire.Code) bool {
	return uint8(code) >= 0x40 && uint8(code) < 0x60
}

func outgoing(code wire.Code, options []wire.Option, payload []byte) session.Outgoing {
	return session.Outgoing{Code: code, Options: options, Payload: payload}
}

// parseOptions extracts the three option kinds the router and
// extractor runtime need from the raw option list: Uri-Path segments,
// Content-Format (nil if unset), and the decoded Observe flag.
func parseOptions(opts []wire.Option) ([]string, *uint32, ObserveFlag) {
	var segments []string
	var contentFmt *uint32
	observeFlag := ObserveNone

	for _, o := range opts {
		switch o.ID {
		case wire.OptionURIPath:
			segments = append(segments, string(o.Value))
		case wire.OptionContentFormat:
			v := wire.DecodeUint(o.Value)
			contentFmt = &v
		case wire.OptionObserve:
			v := wire.DecodeUint(o.Value)
			if v == 0 {
				observeFlag = ObserveRegister
			} else {
				observeFlag = ObserveDeregister
			}
		}
	}
	return segments, contentFmt, observeFlag
}
