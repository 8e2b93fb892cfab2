// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/auth"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error  errorDetail       `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		Name:        u.Name,
		Email:       u.Email,
		Activated:   u.Activated,
		ActivatedAt: u.ActivatedAt,
		CreatedAt:   u.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{
		Error:  errorDetail{Code: "validation_failed", Message: "入力内容に誤りがあります。"},
		Fields: fields,
	})
}

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code("WEB_BAD_REQUEST").Wrap(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return oops.Code("WEB_BAD_REQUEST").Errorf("request body must contain a single JSON object")
	}
	return nil
}
