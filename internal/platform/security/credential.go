package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// TemporaryCredentialLength is the length of generated one-time credentials.
	TemporaryCredentialLength = 16
	maxGenerateAttempts       = 8
)

// Ambiguous glyphs (0/O, 1/l/I) are excluded.
const (
	upperSet  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerSet  = "abcdefghijkmnopqrstuvwxyz"
	digitSet  = "23456789"
	symbolSet = "!#$%&*+-=?@^_"
)

// GenerateTemporaryCredential returns a random credential holding every character class
// and satisfying policy.
func GenerateTemporaryCredential(policy *Policy) (string, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate, err := randomCredential(TemporaryCredentialLength)
		if err != nil {
			return "", err
		}
		if policy.Validate(candidate) == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("security: could not generate a credential meeting policy")
}

func randomCredential(length int) (string, error) {
	all := upperSet + lowerSet + digitSet + symbolSet
	buf := make([]byte, 0, length)
	for _, set := range []string{upperSet, lowerSet, digitSet, symbolSet} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	// Fisher-Yates so the guaranteed classes are not always in front
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("security: read random: %w", err)
	}
	return set[n.Int64()], nil
}
