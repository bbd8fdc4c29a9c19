// Package validator holds the credential rules that don't fit a struct tag.
package validator

import (
	"fmt"
	"regexp"
)

var (
	lowercase = regexp.MustCompile(`[a-z]`)
	uppercase = regexp.MustCompile(`[A-Z]`)
	number    = regexp.MustCompile(`\d`)
)

// Password returns a machine-readable reason code, surfaced to the client as
// a form field error.
func Password(password string) error {
	length := len(password)
	if length < 6 {
		return fmt.Errorf("short_password")
	} else if length > 72 {
		// bcrypt truncates past 72 bytes
		return fmt.Errorf("long_password")
	}

	if !lowercase.MatchString(password) {
		return fmt.Errorf("no_lowercase")
	}
	if !uppercase.MatchString(password) {
		return fmt.Errorf("no_uppercase")
	}
	if !number.MatchString(password) {
		return fmt.Errorf("no_number")
	}
	return nil
}
