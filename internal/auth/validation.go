// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"
)

// Field limits for user input.
const (
	MaxNameLength     = 50
	MaxEmailLength    = 255
	MinPasswordLength = 6
	// MaxPasswordLength is the bcrypt input limit.
	MaxPasswordLength = 72
)

// EmailPattern is the accepted email shape, matched case-insensitively.
var EmailPattern = regexp.MustCompile(`(?i)\A[\w+\-.]+@[a-z\d\-]+(\.[a-z\d\-]+)*\.[a-z]+\z`)

// RegisterInput is the signup form.
type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Validate checks every field and reports all failures at once.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name,
			validation.Required.Error("can't be blank"),
			validation.RuneLength(0, MaxNameLength).Error("is too long (maximum is 50 characters)"),
		),
		validation.Field(&in.Email,
			validation.Required.Error("can't be blank"),
			validation.Length(0, MaxEmailLength).Error("is too long (maximum is 255 characters)"),
			validation.Match(EmailPattern).Error("is invalid"),
		),
		validation.Field(&in.Password, passwordRules()...),
		validation.Field(&in.PasswordConfirmation,
			validation.By(matchesPassword(in.Password)),
		),
	)
}

// present rejects empty and whitespace-only strings, which
// validation.Required lets through.
var present = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("can't be blank")
	}
	return nil
})

func passwordRules() []validation.Rule {
	return []validation.Rule{
		present,
		validation.Length(MinPasswordLength, 0).Error("is too short (minimum is 6 characters)"),
		validation.Length(0, MaxPasswordLength).Error("is too long (maximum is 72 characters)"),
	}
}

func matchesPassword(password string) validation.RuleFunc {
	return func(value interface{}) error {
		confirmation, _ := value.(string)
		if confirmation != "" && confirmation != password {
			return errors.New("doesn't match password")
		}
		return nil
	}
}

// validatePassword checks a replacement password.
func validatePassword(password string) error {
	if err := validation.Validate(password, passwordRules()...); err != nil {
		return validationFailed(&ValidationError{Fields: map[string]string{"password": err.Error()}})
	}
	return nil
}

// toValidationError converts ozzo errors into a *ValidationError wrapped with
// AUTH_VALIDATION_FAILED. Internal rule errors are returned as-is.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return oops.Code("AUTH_VALIDATION_FAILED").Wrap(err)
	}
	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		fields[field] = fieldErr.Error()
	}
	return validationFailed(&ValidationError{Fields: fields})
}

func validationFailed(ve *ValidationError) error {
	return oops.Code("AUTH_VALIDATION_FAILED").Wrap(ve)
}
