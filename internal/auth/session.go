// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionStore is the transient per-browser-session state.
type SessionStore interface {
	UserID() (ulid.ULID, bool)
	SetUserID(id ulid.ULID)
	ClearUserID()
	ForwardingURL() (string, bool)
	SetForwardingURL(url string)
	ClearForwardingURL()
}

// CookieJar is the durable client-side state backing "remember me".
// RememberedUser returns the user id only when its signature verified.
type CookieJar interface {
	RememberedUser() (ulid.ULID, string, bool)
	SetRemembered(id ulid.ULID, token string)
	ClearRemembered()
}

// SessionService is the part of Service a SessionContext needs.
type SessionService interface {
	UserByID(ctx context.Context, id ulid.ULID) (*User, error)
	VerifyRemember(user *User, token string) bool
	Remember(ctx context.Context, user *User) (string, error)
	Forget(ctx context.Context, user *User) error
}

var _ SessionService = (*Service)(nil)

// SessionContext resolves and manages the logged-in user for one request.
// It is not safe for concurrent use.
type SessionContext struct {
	svc     SessionService
	session SessionStore
	cookies CookieJar

	resolved bool
	current  *User
}

// NewSessionContext creates a SessionContext for a single request.
func NewSessionContext(svc SessionService, session SessionStore, cookies CookieJar) (*SessionContext, error) {
	if svc == nil {
		return nil, oops.Errorf("session service is required")
	}
	if session == nil {
		return nil, oops.Errorf("session store is required")
	}
	if cookies == nil {
		return nil, oops.Errorf("cookie jar is required")
	}
	return &SessionContext{svc: svc, session: session, cookies: cookies}, nil
}

// LogIn records user as the session's current user.
func (c *SessionContext) LogIn(user *User) {
	if user == nil {
		return
	}
	c.session.SetUserID(user.ID)
	c.current = user
	c.resolved = true
}

// CurrentUser resolves the logged-in user, or nil if there is none.
//
// The transient session is consulted first. Failing that, a verified
// remember cookie logs the user in for the rest of the session.
func (c *SessionContext) CurrentUser(ctx context.Context) (*User, error) {
	if c.resolved {
		return c.current, nil
	}

	user, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	c.current = user
	c.resolved = true
	return user, nil
}

func (c *SessionContext) resolve(ctx context.Context) (*User, error) {
	if id, ok := c.session.UserID(); ok {
		user, err := c.lookup(ctx, id)
		if err != nil || user != nil {
			return user, err
		}
		// Stale id: the account no longer exists.
		c.session.ClearUserID()
		return nil, nil
	}

	id, token, ok := c.cookies.RememberedUser()
	if !ok {
		return nil, nil
	}
	user, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil || !c.svc.VerifyRemember(user, token) {
		return nil, nil
	}
	c.session.SetUserID(user.ID)
	return user, nil
}

func (c *SessionContext) lookup(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := c.svc.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// LoggedIn reports whether a current user resolves. Lookup failures count as
// logged out.
func (c *SessionContext) LoggedIn(ctx context.Context) bool {
	user, err := c.CurrentUser(ctx)
	return err == nil && user != nil
}

// IsCurrentUser reports whether user is the logged-in user.
func (c *SessionContext) IsCurrentUser(ctx context.Context, user *User) bool {
	if user == nil {
		return false
	}
	current, err := c.CurrentUser(ctx)
	if err != nil || current == nil {
		return false
	}
	return current.ID == user.ID
}

// Remember issues a remember token and writes the durable cookies.
func (c *SessionContext) Remember(ctx context.Context, user *User) error {
	token, err := c.svc.Remember(ctx, user)
	if err != nil {
		return err
	}
	c.cookies.SetRemembered(user.ID, token)
	return nil
}

// Forget clears the remember digest and the durable cookies.
func (c *SessionContext) Forget(ctx context.Context, user *User) error {
	if err := c.svc.Forget(ctx, user); err != nil {
		return err
	}
	c.cookies.ClearRemembered()
	return nil
}

// LogOut forgets the current user and ends the session. Without a current
// user it does nothing.
func (c *SessionContext) LogOut(ctx context.Context) error {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	if err := c.Forget(ctx, user); err != nil {
		return err
	}
	c.session.ClearUserID()
	c.current = nil
	return nil
}

// StoreForwarding remembers url for a redirect after login. Only safe
// methods are recorded so a form submission is never replayed.
func (c *SessionContext) StoreForwarding(method, url string) {
	if method != http.MethodGet && method != http.MethodHead {
		return
	}
	c.session.SetForwardingURL(url)
}

// ConsumeForwarding returns the stored URL, or def, and clears it.
func (c *SessionContext) ConsumeForwarding(def string) string {
	url, ok := c.session.ForwardingURL()
	c.session.ClearForwardingURL()
	if !ok || url == "" {
		return def
	}
	return url
}
