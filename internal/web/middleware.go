// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/felixge/httpsnoop"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/auth"
	"github.com/wordapp/wordapp/internal/logging"
	"github.com/wordapp/wordapp/pkg/errutil"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 64

type stateKey struct{}

// requestState is the per-request session machinery.
type requestState struct {
	session *cookieSession
	jar     *cookieJar
	auth    *auth.SessionContext
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey{}).(*requestState)
	return st
}

// requestID reuses a sane inbound id or mints a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// recoverPanics answers 500 for a panicking handler, unless the handler had
// already started its response.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var started bool
		wrapped := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					started = true
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					started = true
					return next(b)
				}
			},
			ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
				return func(src io.Reader) (int64, error) {
					started = true
					return next(src)
				}
			},
		})

		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(v)
				}
				errutil.LogErrorContext(r.Context(), s.logger, "panic in handler",
					oops.Code("WEB_PANIC").
						With("path", r.URL.Path).
						With("response_started", started).
						Errorf("%v", v))
				if !started {
					writeError(w, http.StatusInternalServerError, "internal", "サーバーエラーが発生しました。")
				}
			}
		}()
		next.ServeHTTP(wrapped, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// instrument records metrics under the route pattern, not the raw path.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(m.Code)).Inc()
		s.metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())
	})
}

// withSession loads the session and cookie jar and writes any changes back
// just before the response headers go out.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{
			session: loadSession(r, s.signer),
			jar:     newCookieJar(r, s.signer, s.now),
		}
		sc, err := auth.NewSessionContext(s.svc, st.session, st.jar)
		if err != nil {
			errutil.LogErrorContext(r.Context(), s.logger, "session setup failed", err)
			writeError(w, http.StatusInternalServerError, "internal", "サーバーエラーが発生しました。")
			return
		}
		st.auth = sc

		var once sync.Once
		flush := func() {
			once.Do(func() {
				st.session.commit(w, s.signer, s.cookies)
				st.jar.commit(w, s.cookies)
			})
		}
		wrapped := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					flush()
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					flush()
					return next(b)
				}
			},
		})

		next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), stateKey{}, st)))
		flush()
	})
}

// requireLogin rejects anonymous requests, remembering a safe GET target
// for after login.
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := stateFrom(r.Context())
		user, err := st.auth.CurrentUser(r.Context())
		if err != nil {
			s.internalError(w, r, "resolve current user", err)
			return
		}
		if user == nil {
			if target, ok := s.forwarding.Clean(r.URL.RequestURI()); ok {
				st.auth.StoreForwarding(r.Method, target)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":     errorDetail{Code: "login_required", Message: "ログインしてください。"},
				"login_url": "/login",
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, msg, err)
	writeError(w, http.StatusInternalServerError, "internal", "サーバーエラーが発生しました。")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
