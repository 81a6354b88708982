// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/courier/internal/errors"
)

var (
	// e164Regex matches a leading plus followed by up to 15 digits, no leading zero.
	e164Regex = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

	// templateNameRegex matches provider template names (lowercase, digits, underscores).
	templateNameRegex = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// IsE164 reports whether s is a phone number in E.164 format.
func IsE164(s string) bool {
	return e164Regex.MatchString(s)
}

// E164 validates that a destination address is in E.164 format.
var E164 = validation.NewStringRuleWithError(
	IsE164,
	validation.NewError("validation_e164", "must be a phone number in E.164 format"),
)

// TemplateName validates provider template names.
var TemplateName = validation.NewStringRuleWithError(
	func(s string) bool {
		return templateNameRegex.MatchString(s)
	},
	validation.NewError("validation_template_name", "must contain only lowercase letters, digits and underscores"),
)

// UUID validates that a string parses as a UUID.
var UUID = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := uuid.Parse(s)
		return err == nil
	},
	validation.NewError("validation_uuid", "must be a valid UUID"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
