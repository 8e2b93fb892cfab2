// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package mail renders and delivers account activation and password reset
// messages.
package mail

import (
	"bytes"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"

	"github.com/wordapp/wordapp/internal/auth"
)

// Subjects of the messages sent to account owners.
const (
	ActivationSubject    = "アカウント有効化メール"
	PasswordResetSubject = "パスワード再設定メール"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Message is a rendered plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Links builds the absolute URLs embedded in messages.
type Links struct {
	BaseURL string
}

// Activation returns {base}/account_activations/{token}/edit?email={email}.
func (l Links) Activation(token, email string) string {
	return l.build("account_activations", token, email)
}

// PasswordReset returns {base}/password_resets/{token}/edit?email={email}.
func (l Links) PasswordReset(token, email string) string {
	return l.build("password_resets", token, email)
}

func (l Links) build(resource, token, email string) string {
	base := strings.TrimRight(l.BaseURL, "/")
	return fmt.Sprintf("%s/%s/%s/edit?email=%s",
		base, resource, url.PathEscape(token), url.QueryEscape(email))
}

type bodyData struct {
	Name   string
	URL    string
	Expiry string
}

// RenderActivation renders the activation message for user.
func RenderActivation(links Links, user *auth.User, token string) (Message, error) {
	body, err := render("activation.txt.tmpl", bodyData{
		Name: user.Name,
		URL:  links.Activation(token, user.Email),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: user.Email, Subject: ActivationSubject, Body: body}, nil
}

// RenderPasswordReset renders the reset message. expiry is shown to the
// reader as the link lifetime.
func RenderPasswordReset(links Links, user *auth.User, token string, expiry time.Duration) (Message, error) {
	body, err := render("password_reset.txt.tmpl", bodyData{
		Name:   user.Name,
		URL:    links.PasswordReset(token, user.Email),
		Expiry: formatExpiry(expiry),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: user.Email, Subject: PasswordResetSubject, Body: body}, nil
}

func render(name string, data bodyData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}

func formatExpiry(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d時間", int(d/time.Hour))
	}
	return fmt.Sprintf("%d分", int(d/time.Minute))
}
