// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

const signatureSeparator = "--"

// Signer signs cookie values with HMAC-SHA256. The cookie name is part of the
// MAC so a value signed for one cookie is rejected under another name.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer from secret.
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("WEB_SECRET_INVALID").
			With("length", len(secret)).
			Errorf("cookie secret must be at least %d bytes", MinSecretLength)
	}
	return &Signer{key: []byte(secret)}, nil
}

// Sign returns value with its signature appended.
func (s *Signer) Sign(name, value string) string {
	return value + signatureSeparator + base64.RawURLEncoding.EncodeToString(s.mac(name, value))
}

// Verify returns the original value when signed carries a valid signature
// for name.
func (s *Signer) Verify(name, signed string) (string, bool) {
	i := strings.LastIndex(signed, signatureSeparator)
	if i < 0 {
		return "", false
	}
	value, encoded := signed[:i], signed[i+len(signatureSeparator):]
	sig, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(sig, s.mac(name, value)) {
		return "", false
	}
	return value, true
}

func (s *Signer) mac(name, value string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(value))
	return h.Sum(nil)
}
