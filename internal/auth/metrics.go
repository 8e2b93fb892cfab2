// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Result label values for authentication metrics.
const (
	ResultSuccess          = "success"
	ResultInvalid          = "invalid"
	ResultNotActivated     = "not_activated"
	ResultValidationFailed = "validation_failed"
	ResultExpired          = "expired"
	ResultError            = "error"
	ResultIgnored          = "ignored"
	StageRequest           = "request"
	StageReset             = "reset"
	StageCheck             = "check"
)

// RegistrationsTotal counts signup attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var RegistrationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wordapp_auth_registrations_total",
		Help: "Total number of registration attempts",
	},
	[]string{"result"},
)

// LoginsTotal counts credential checks by result.
var LoginsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wordapp_auth_logins_total",
		Help: "Total number of login attempts",
	},
	[]string{"result"},
)

// ActivationsTotal counts activation link uses by result.
var ActivationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wordapp_auth_activations_total",
		Help: "Total number of account activation attempts",
	},
	[]string{"result"},
)

// ActivationResendsTotal counts requests for a new activation mail.
var ActivationResendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wordapp_auth_activation_resends_total",
		Help: "Total number of activation mail resend requests",
	},
	[]string{"result"},
)

// PasswordResetsTotal counts reset requests, link checks and completions.
var PasswordResetsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wordapp_auth_password_resets_total",
		Help: "Total number of password reset requests and completions",
	},
	[]string{"stage", "result"},
)

// PasswordRehashesTotal counts digests upgraded on login.
var PasswordRehashesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wordapp_auth_password_rehashes_total",
		Help: "Total number of password digests upgraded after login",
	},
	[]string{"result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RegistrationsTotal)
	reg.MustRegister(LoginsTotal)
	reg.MustRegister(ActivationsTotal)
	reg.MustRegister(ActivationResendsTotal)
	reg.MustRegister(PasswordResetsTotal)
	reg.MustRegister(PasswordRehashesTotal)
}
