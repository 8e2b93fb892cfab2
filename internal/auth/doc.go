// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package auth provides the authentication and session core for WordApp.
//
// # Domain Types
//
// A User is created through Service.Register, which normalizes the email,
// validates the input, hashes the password and issues the activation token.
// Direct struct initialization bypasses validation and may create invalid state.
//
// Tokens are never persisted. Only their digests are stored, one per Purpose:
//   - PurposeRemember - the "remember me" cookie token
//   - PurposeActivation - the account activation link token
//   - PurposeReset - the password reset link token
//
// DigestStore.Verify checks a raw token against the digest for a purpose and
// fails closed when the digest is absent.
//
// # Services
//
//   - Service - registration, authentication, activation, remember/forget,
//     password reset
//   - SessionContext - per-request current-user resolution over a transient
//     SessionStore and a durable CookieJar, with friendly forwarding
//
// Services are created with New* constructors that validate dependencies.
package auth
