// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import "context"

// Mailer delivers raw tokens to the account owner. The token is only ever
// visible in the message; the user carries the digest.
type Mailer interface {
	SendActivation(ctx context.Context, user *User, token string) error
	SendPasswordReset(ctx context.Context, user *User, token string) error
}
