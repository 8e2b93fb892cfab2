// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wordapp/wordapp/internal/auth"
)

// Cookie names.
const (
	SessionCookie       = "_wordapp_session"
	UserIDCookie        = "user_id"
	RememberTokenCookie = "remember_token"
)

// RememberFor is the lifetime of the durable cookies.
const RememberFor = 20 * 365 * 24 * time.Hour

// CookieOptions are shared by every cookie the server writes.
type CookieOptions struct {
	Secure bool
}

func (o CookieOptions) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) expired(name string) *http.Cookie {
	c := o.cookie(name, "")
	c.Expires = time.Unix(0, 0).UTC()
	c.MaxAge = -1
	return c
}

type sessionData struct {
	UserID        string `json:"user_id,omitempty"`
	ForwardingURL string `json:"forwarding_url,omitempty"`
}

// cookieSession implements auth.SessionStore on a signed browser-session
// cookie. Changes are buffered until commit.
type cookieSession struct {
	data  sessionData
	dirty bool
}

var _ auth.SessionStore = (*cookieSession)(nil)

// loadSession reads the session cookie. A missing, tampered or malformed
// cookie yields an empty session.
func loadSession(r *http.Request, signer *Signer) *cookieSession {
	s := &cookieSession{}
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return s
	}
	payload, ok := signer.Verify(SessionCookie, c.Value)
	if !ok {
		return s
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return s
	}
	_ = json.Unmarshal(raw, &s.data) //nolint:errcheck // malformed payload is an empty session
	return s
}

func (s *cookieSession) UserID() (ulid.ULID, bool) {
	if s.data.UserID == "" {
		return ulid.ULID{}, false
	}
	id, err := ulid.Parse(s.data.UserID)
	if err != nil {
		return ulid.ULID{}, false
	}
	return id, true
}

func (s *cookieSession) SetUserID(id ulid.ULID) {
	s.data.UserID = id.String()
	s.dirty = true
}

func (s *cookieSession) ClearUserID() {
	if s.data.UserID != "" {
		s.data.UserID = ""
		s.dirty = true
	}
}

func (s *cookieSession) ForwardingURL() (string, bool) {
	return s.data.ForwardingURL, s.data.ForwardingURL != ""
}

func (s *cookieSession) SetForwardingURL(url string) {
	s.data.ForwardingURL = url
	s.dirty = true
}

func (s *cookieSession) ClearForwardingURL() {
	if s.data.ForwardingURL != "" {
		s.data.ForwardingURL = ""
		s.dirty = true
	}
}

// commit writes the session cookie if it changed. It has no expiry, so the
// browser drops it when it closes.
func (s *cookieSession) commit(w http.ResponseWriter, signer *Signer, opts CookieOptions) {
	if !s.dirty {
		return
	}
	s.dirty = false
	if s.data == (sessionData{}) {
		http.SetCookie(w, opts.expired(SessionCookie))
		return
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	http.SetCookie(w, opts.cookie(SessionCookie, signer.Sign(SessionCookie, payload)))
}

// cookieJar implements auth.CookieJar with a signed user_id cookie and the
// raw remember_token cookie.
type cookieJar struct {
	r      *http.Request
	signer *Signer
	now    func() time.Time

	pending []*http.Cookie
}

var _ auth.CookieJar = (*cookieJar)(nil)

func newCookieJar(r *http.Request, signer *Signer, now func() time.Time) *cookieJar {
	return &cookieJar{r: r, signer: signer, now: now}
}

func (j *cookieJar) RememberedUser() (ulid.ULID, string, bool) {
	idCookie, err := j.r.Cookie(UserIDCookie)
	if err != nil {
		return ulid.ULID{}, "", false
	}
	tokenCookie, err := j.r.Cookie(RememberTokenCookie)
	if err != nil || tokenCookie.Value == "" {
		return ulid.ULID{}, "", false
	}
	raw, ok := j.signer.Verify(UserIDCookie, idCookie.Value)
	if !ok {
		return ulid.ULID{}, "", false
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, "", false
	}
	return id, tokenCookie.Value, true
}

func (j *cookieJar) SetRemembered(id ulid.ULID, token string) {
	expires := j.now().Add(RememberFor)
	j.pending = append(j.pending,
		&http.Cookie{Name: UserIDCookie, Value: j.signer.Sign(UserIDCookie, id.String()), Expires: expires},
		&http.Cookie{Name: RememberTokenCookie, Value: token, Expires: expires},
	)
}

func (j *cookieJar) ClearRemembered() {
	j.pending = append(j.pending,
		&http.Cookie{Name: UserIDCookie, MaxAge: -1},
		&http.Cookie{Name: RememberTokenCookie, MaxAge: -1},
	)
}

// commit writes the queued cookie changes with the shared options applied.
func (j *cookieJar) commit(w http.ResponseWriter, opts CookieOptions) {
	for _, p := range j.pending {
		c := opts.cookie(p.Name, p.Value)
		if p.MaxAge < 0 {
			c = opts.expired(p.Name)
		} else {
			c.Expires = p.Expires
		}
		http.SetCookie(w, c)
	}
	j.pending = nil
}
