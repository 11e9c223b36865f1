// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"fmt"
	"strings"
)

// pathSegment is one element of a compiled route template: either a
// literal to match exactly, or a named capture.
type pathSegment struct {
	literal string
	capture string // non-empty iff this segment is a capture
}

// routeTemplate is a compiled `/literal/:named` pattern, per §3.
type routeTemplate struct {
	raw      string
	segments []pathSegment
}

func compileTemplate(pattern string) routeTemplate {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return routeTemplate{raw: pattern}
	}
	parts := strings.Split(trimmed, "/")
	segs := make([]pathSegment, len(parts))
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			segs[i] = pathSegment{capture: p[1:]}
		} else {
			segs[i] = pathSegment{literal: p}
		}
	}
	return routeTemplate{raw: pattern, segments: segs}
}

// conflictsWith implements §3's conflict rule: two templates conflict
// iff they have equal length and every position is literal-equal or
// both-capture.
func (t routeTemplate) conflictsWith(other routeTemplate) bool {
	if len(t.segments) != len(other.segments) {
		return false
	}
	for i := range t.segments {
		a, b := t.segments[i], other.segments[i]
		aCapture := a.capture != ""
		bCapture := b.capture != ""
		if aCapture != bCapture {
			return false
		}
		if !aCapture && a.literal != b.literal {
			return false
		}
	}
	return true
}

// match attempts to match segments against the template, returning
// the captured named parameters on success.
func (t routeTemplate) match(segments []string) (map[string]string, bool) {
	if len(segments) != len(t.segments) {
		return nil, false
	}
	var captures map[string]string
	for i, seg := range t.segments {
		if seg.capture != "" {
			if captures == nil {
				captures = make(map[string]string, len(t.segments))
			}
			captures[seg.capture] = segments[i]
			continue
		}
		if seg.literal != segments[i] {
			return nil, false
		}
	}
	if captures == nil {
		captures = map[string]string{}
	}
	return captures, true
}

func validateTemplate(pattern string) error {
	for _, seg := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if strings.HasPrefix(seg, ":") && len(seg) == 1 {
			return fmt.Errorf("coap: empty capture name in template %q", pattern)
		}
	}
	return nil
}
