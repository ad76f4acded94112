package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	// DefaultMaxAttempts bounds claim retries on identifier collisions.
	DefaultMaxAttempts = 5
	maxProbe           = 10_000
)

// Sanitize lower-cases component, folds diacritics to their base letter and drops every
// character outside [a-z0-9]. "José" becomes "jose", "O'Brien-Smith" becomes "obriensmith".
func Sanitize(component string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(fold, component)
	if err != nil {
		folded = component
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BaseIdentifier joins the sanitized components as "first.last". Either side may be empty.
func BaseIdentifier(firstName, lastName string) string {
	return Sanitize(firstName) + "." + Sanitize(lastName)
}

// Candidate returns the n-th candidate for base: base, base2, base3, ...
func Candidate(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + strconv.Itoa(n)
}

// Lookup finds identities by login identifier.
type Lookup interface {
	FindByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// ClaimFunc atomically takes identifier, failing with shared.ErrDuplicateIdentifier when
// it is already taken.
type ClaimFunc func(ctx context.Context, identifier string) error

// Generator turns names into unique login identifiers.
type Generator struct {
	lookup      Lookup
	maxAttempts int
}

// NewGenerator builds a Generator. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewGenerator(lookup Lookup, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{lookup: lookup, maxAttempts: maxAttempts}
}

// Next returns the first candidate that is unused at call time without claiming it.
func (g *Generator) Next(ctx context.Context, firstName, lastName string) (string, error) {
	base := BaseIdentifier(firstName, lastName)
	n, err := g.firstFree(ctx, base, 1)
	if err != nil {
		return "", err
	}
	return Candidate(base, n), nil
}

// Generate finds the first unused candidate and claims it. When a concurrent caller wins
// the claim, the search resumes after the lost candidate. Candidates only move forward, so
// every lost attempt is an identifier taken by someone else.
func (g *Generator) Generate(ctx context.Context, firstName, lastName string, claim ClaimFunc) (string, error) {
	base := BaseIdentifier(firstName, lastName)
	n := 1
	for attempt := 1; ; attempt++ {
		free, err := g.firstFree(ctx, base, n)
		if err != nil {
			return "", err
		}
		candidate := Candidate(base, free)
		err = claim(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, shared.ErrDuplicateIdentifier) {
			return "", err
		}
		if attempt >= g.maxAttempts {
			return "", fmt.Errorf("%w: %q still colliding after %d attempts", shared.ErrProvisioningConflict, base, attempt)
		}
		n = free + 1
	}
}

func (g *Generator) firstFree(ctx context.Context, base string, from int) (int, error) {
	for n := from; n < from+maxProbe; n++ {
		_, err := g.lookup.FindByIdentifier(ctx, Candidate(base, n))
		if errors.Is(err, shared.ErrNotFound) {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("users: lookup identifier: %w", err)
		}
	}
	return 0, fmt.Errorf("%w: no free identifier for %q", shared.ErrProvisioningConflict, base)
}
