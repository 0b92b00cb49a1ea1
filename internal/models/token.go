package models

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TokenLength is the exact length of a job-board access token.
const TokenLength = 64

var (
	ErrTokenFormat = errors.New("token does not match format")

	tokenPattern = regexp.MustCompile(`^[A-Z0-9]{64}$`)
)

// NormalizeToken folds pasted user input into the canonical token form:
// compatibility-normalized, trimmed and upper-cased.
func NormalizeToken(raw string) string {
	t := transform.Chain(norm.NFKC, cases.Upper(language.Und))
	result, _, err := transform.String(t, strings.TrimSpace(raw))
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	return result
}

func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return ErrTokenFormat
	}
	return nil
}

// MaskToken keeps tokens out of logs.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
