package models

import (
	"regexp"
	"strings"
)

var accountPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// NormalizeAccount folds an account handle into its stored form: trimmed,
// without a leading "@", lowercased.
func NormalizeAccount(account string) string {
	account = strings.TrimSpace(account)
	account = strings.TrimPrefix(account, "@")
	return strings.ToLower(account)
}

func ValidAccount(account string) bool {
	return accountPattern.MatchString(account)
}
