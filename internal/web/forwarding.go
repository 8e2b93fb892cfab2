// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package web

import (
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// ForwardingPolicy decides which request URLs may be stored for the
// post-login redirect. Only same-origin paths matching an allow pattern pass.
type ForwardingPolicy struct {
	allow []glob.Glob
}

// NewForwardingPolicy compiles the allow patterns. Path segments are
// separated by '/', so "*" matches one segment and "**" any number.
func NewForwardingPolicy(patterns []string) (*ForwardingPolicy, error) {
	p := &ForwardingPolicy{allow: make([]glob.Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, oops.Code("WEB_FORWARDING_INVALID").With("pattern", pattern).Wrap(err)
		}
		p.allow = append(p.allow, g)
	}
	return p, nil
}

// Clean returns the path and query of raw when it is a safe local target.
func (p *ForwardingPolicy) Clean(raw string) (string, bool) {
	if raw == "" || strings.ContainsAny(raw, "\\\r\n") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "", false
	}
	if !p.allowed(u.Path) {
		return "", false
	}
	target := u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target, true
}

func (p *ForwardingPolicy) allowed(path string) bool {
	for _, g := range p.allow {
		if g.Match(path) {
			return true
		}
	}
	return false
}
