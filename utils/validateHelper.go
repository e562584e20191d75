package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var ErrorInvalidEmail = errors.New("invalid email address")

// ValidateSubscriberEmail rejects addresses the mail provider would bounce
// outright. Matching is intentionally loose (RFC 5322 via validator); the
// delivery worker handles provider-side rejections as permanent failures.
func ValidateSubscriberEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrorInvalidEmail
	}
	if err := validate.Var(email, "email"); err != nil {
		return ErrorInvalidEmail
	}
	return nil
}
