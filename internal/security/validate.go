package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator exposes the shared go-playground validator so form structs can
// be checked with the same instance.
func Validator() *validator.Validate {
	return validate
}

// ValidateEmail checks address shape and the 254 character limit.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long")
	}
	if err := validate.Var(email, "email"); err != nil {
		return fmt.Errorf("email is not valid")
	}
	return nil
}

// ValidatePhone accepts 7 to 15 digits optionally decorated with
// "+ ( ) - ." and spaces.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("phone is required")
	}
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r) && r <= unicode.MaxASCII:
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return fmt.Errorf("phone contains invalid characters")
		}
	}
	if digits < 7 || digits > 15 {
		return fmt.Errorf("phone must have between 7 and 15 digits")
	}
	return nil
}

// ValidateLength enforces rune length bounds on a trimmed value.
// A zero min means the value is optional.
func ValidateLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if min > 0 && n == 0 {
		return fmt.Errorf("%s is required", field)
	}
	if n < min {
		return fmt.Errorf("%s must be at least %d characters", field, min)
	}
	if max > 0 && n > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}
