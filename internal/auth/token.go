// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/samber/oops"
)

// TokenBytes is the amount of entropy in every generated token.
const TokenBytes = 32

// TokenGenerator produces unguessable URL-safe tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// RandomTokenGenerator reads TokenBytes from a cryptographic source and encodes
// them with unpadded base64url, giving 43 characters.
type RandomTokenGenerator struct {
	reader io.Reader
}

// NewRandomTokenGenerator returns a generator backed by crypto/rand.
func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{reader: rand.Reader}
}

// NewToken returns a fresh token.
func (g *RandomTokenGenerator) NewToken() (string, error) {
	r := g.reader
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", oops.Code("AUTH_TOKEN_GENERATION_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
