// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/wordapp/wordapp/internal/auth"
	"github.com/wordapp/wordapp/pkg/errutil"
)

// User-facing messages.
const (
	msgWelcome            = "word appへようこそ!有効化メールを送信しました。メールを確認してアカウントを有効にしてください。"
	msgInvalidCredentials = "emailかpasswordが不正です。"
	msgNotActivated       = "アカウントはまだ有効ではありません。 送られたメールを確認して下さい"
	msgActivated          = "アカウントが認証されました!"
	msgInvalidActivation  = "有効化リンクが無効です。"
	msgActivationMailFail = "有効化メールを送信できませんでした。しばらくしてから有効化メールの再送信を行ってください。"
	msgActivationResent   = "有効化メールを再送信しました。"
	msgResetLinkValid     = "新しいパスワードを入力してください。"
	msgResetRequested     = "パスワード再設定用のメールを送信しました。"
	msgInvalidReset       = "パスワード再設定リンクが無効です。"
	msgResetExpired       = "パスワード再設定の有効期限が切れています。"
	msgPasswordReset      = "パスワードが再設定されました。"
	msgPasswordMismatch   = "doesn't match password"
	msgBadRequest         = "リクエストの形式が不正です。"
)

// AuthService is the account API the handlers drive.
type AuthService interface {
	auth.SessionService
	Register(ctx context.Context, in auth.RegisterInput) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
	Activate(ctx context.Context, email, token string) (*auth.User, error)
	ResendActivation(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	CheckPasswordReset(ctx context.Context, email, token string) (*auth.User, error)
	ResetPassword(ctx context.Context, email, token, newPassword string) (*auth.User, error)
}

var _ AuthService = (*auth.Service)(nil)

func (s *Server) routes() {
	s.handle("POST /signup", s.handleSignup)
	s.handle("POST /users", s.handleSignup)
	s.handle("POST /login", s.handleLogin)
	s.handle("POST /logout", s.handleLogout)
	s.handle("DELETE /logout", s.handleLogout)
	s.handle("POST /account_activations", s.handleResendActivation)
	s.handle("GET /account_activations/{token}/edit", s.handleActivate)
	s.handle("POST /password_resets", s.handleResetRequest)
	s.handle("GET /password_resets/{token}/edit", s.handleResetCheck)
	s.handle("PATCH /password_resets/{token}", s.handleReset)
	s.handle("GET /me", s.requireLogin(s.handleMe))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(pattern, s.withSession(h)))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}

	user, err := s.svc.Register(r.Context(), in)
	switch {
	case err == nil:
	case user != nil:
		// The account exists but never got its link; POST /account_activations
		// sends a fresh one.
		errutil.LogErrorContext(r.Context(), s.logger, "activation mail failed", err)
		writeError(w, http.StatusInternalServerError, "activation_mail_failed", msgActivationMailFail)
		return
	default:
		if s.writeValidationError(w, err) {
			return
		}
		s.internalError(w, r, "signup failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    newUserResponse(user),
		"message": msgWelcome,
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}

	user, err := s.svc.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", msgInvalidCredentials)
		return
	case errors.Is(err, auth.ErrNotActivated):
		writeError(w, http.StatusForbidden, "not_activated", msgNotActivated)
		return
	case err != nil:
		s.internalError(w, r, "login failed", err)
		return
	}

	sc := stateFrom(r.Context()).auth
	sc.LogIn(user)
	if req.RememberMe {
		err = sc.Remember(r.Context(), user)
	} else {
		err = sc.Forget(r.Context(), user)
	}
	if err != nil {
		s.internalError(w, r, "update remember state failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     newUserResponse(user),
		"redirect": sc.ConsumeForwarding("/users/" + user.ID.String()),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := stateFrom(r.Context()).auth.LogOut(r.Context()); err != nil {
		s.internalError(w, r, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	email := r.URL.Query().Get("email")

	user, err := s.svc.Activate(r.Context(), email, token)
	switch {
	case errors.Is(err, auth.ErrInvalidActivationLink):
		writeError(w, http.StatusBadRequest, "invalid_activation_link", msgInvalidActivation)
		return
	case err != nil:
		s.internalError(w, r, "activation failed", err)
		return
	}

	stateFrom(r.Context()).auth.LogIn(user)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    newUserResponse(user),
		"message": msgActivated,
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendActivation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	// Unknown and active accounts get the same answer.
	if err := s.svc.ResendActivation(r.Context(), req.Email); err != nil {
		s.internalError(w, r, "resend activation failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message": msgActivationResent})
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	// Unknown and inactive accounts get the same answer as real ones.
	if err := s.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.internalError(w, r, "password reset request failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message": msgResetRequested})
}

// handleResetCheck is where the mailed reset link lands. It validates the
// link without consuming it and points the client at the PATCH route.
func (s *Server) handleResetCheck(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	user, err := s.svc.CheckPasswordReset(r.Context(), r.URL.Query().Get("email"), token)
	if !s.writeResetLinkError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":     user.Email,
		"message":   msgResetLinkValid,
		"reset_url": "/password_resets/" + url.PathEscape(token),
	})
}

// writeResetLinkError answers for a failed reset link and reports whether
// the caller should continue.
func (s *Server) writeResetLinkError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrInvalidResetLink):
		writeError(w, http.StatusBadRequest, "invalid_reset_link", msgInvalidReset)
	case errors.Is(err, auth.ErrResetExpired):
		writeError(w, http.StatusGone, "reset_expired", msgResetExpired)
	default:
		if !s.writeValidationError(w, err) {
			s.internalError(w, r, "password reset failed", err)
		}
	}
	return false
}

type resetPasswordRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	if req.Password != req.PasswordConfirmation {
		writeValidation(w, map[string]string{"password_confirmation": msgPasswordMismatch})
		return
	}

	user, err := s.svc.ResetPassword(r.Context(), req.Email, r.PathValue("token"), req.Password)
	if !s.writeResetLinkError(w, r, err) {
		return
	}

	st := stateFrom(r.Context())
	st.auth.LogIn(user)
	// The reset revoked every remember digest; drop the stale cookies too.
	st.jar.ClearRemembered()
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    newUserResponse(user),
		"message": msgPasswordReset,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := stateFrom(r.Context()).auth.CurrentUser(r.Context())
	if err != nil {
		s.internalError(w, r, "resolve current user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

func (s *Server) writeValidationError(w http.ResponseWriter, err error) bool {
	var ve *auth.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeValidation(w, ve.Fields)
	return true
}
