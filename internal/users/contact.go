package users

import (
	"net/mail"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	minSubscriberDigits = 10
	maxSubscriberDigits = 15
	maxCountryCode      = 3
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEmail checks value against mail address syntax. Display-name forms such as
// "Jane <jane@example.com>" are rejected.
func ValidateEmail(value string) error {
	if strings.TrimSpace(value) == "" {
		return shared.NewFormatError("email", "must not be empty")
	}
	if err := validate.Var(value, "email"); err != nil {
		return shared.NewFormatError("email", "not a valid address")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return shared.NewFormatError("email", "not a valid address")
	}
	return nil
}

// ValidatePhone checks an international number such as "+91 9876543210": a '+', a 1-3
// digit country code followed by a space, hyphen or '(', then 10-15 further digits.
// Only digits, spaces, hyphens and parentheses may follow the '+'.
func ValidatePhone(value string) error {
	rest, ok := strings.CutPrefix(value, "+")
	if !ok {
		return shared.NewFormatError("phone", "must start with +")
	}
	for _, r := range rest {
		if !isPhoneRune(r) {
			return shared.NewFormatError("phone", "may only contain digits, spaces, hyphens and parentheses")
		}
	}

	cc := 0
	for cc < len(rest) && isDigit(rune(rest[cc])) {
		cc++
	}
	if cc == 0 || cc > maxCountryCode {
		return shared.NewFormatError("phone", "country code must be 1 to 3 digits")
	}
	if cc == len(rest) || !isSeparator(rune(rest[cc])) {
		return shared.NewFormatError("phone", "country code must be followed by a space, hyphen or parenthesis")
	}

	digits := 0
	for _, r := range rest[cc:] {
		if isDigit(r) {
			digits++
		}
	}
	if digits < minSubscriberDigits || digits > maxSubscriberDigits {
		return shared.NewFormatError("phone", "number must have 10 to 15 digits after the country code")
	}
	return nil
}

func isPhoneRune(r rune) bool {
	return isDigit(r) || r == ' ' || r == '-' || r == '(' || r == ')'
}

func isSeparator(r rune) bool {
	return r == ' ' || r == '-' || r == '('
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
