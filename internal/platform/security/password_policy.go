package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PolicyError represents a single credential policy violation.
type PolicyError struct {
	Code    string
	Message string
}

// Error implements error.
func (e *PolicyError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Rule validates a credential according to one policy rule.
type Rule interface {
	Validate(credential string) error
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(credential string) error

// Validate executes the underlying function.
func (f RuleFunc) Validate(credential string) error {
	return f(credential)
}

// Policy applies a sequence of rules.
type Policy struct {
	rules []Rule
}

// NewPolicy constructs a policy with the provided rules.
func NewPolicy(rules ...Rule) *Policy {
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Policy{rules: copied}
}

// DefaultPolicy is the minimum strength for temporary and user-chosen credentials.
func DefaultPolicy() *Policy {
	return NewPolicy(
		MinLengthRule(12),
		CharacterClassesRule(3),
		MinStrengthRule(3),
	)
}

// Validate returns the first violation.
func (p *Policy) Validate(credential string) error {
	if p == nil {
		return fmt.Errorf("credential policy not configured")
	}
	for _, rule := range p.rules {
		if err := rule.Validate(credential); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule requires at least min characters.
func MinLengthRule(min int) Rule {
	return RuleFunc(func(credential string) error {
		if len([]rune(credential)) < min {
			return &PolicyError{
				Code:    "min_length",
				Message: fmt.Sprintf("credential must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// CharacterClassesRule requires characters from at least min of upper, lower, digit, symbol.
func CharacterClassesRule(min int) Rule {
	return RuleFunc(func(credential string) error {
		if classCount(credential) < min {
			return &PolicyError{
				Code:    "character_classes",
				Message: fmt.Sprintf("credential must mix at least %d of upper case, lower case, digits and symbols", min),
			}
		}
		return nil
	})
}

// MinStrengthRule requires a zxcvbn score of at least min (0-4).
func MinStrengthRule(min int) Rule {
	return RuleFunc(func(credential string) error {
		if zxcvbn.PasswordStrength(credential, nil).Score < min {
			return &PolicyError{
				Code:    "weak",
				Message: "credential is too easy to guess",
			}
		}
		return nil
	})
}

func classCount(s string) int {
	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	n := 0
	for _, ok := range []bool{upper, lower, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}
