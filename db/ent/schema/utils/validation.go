package utils

import (
	"fmt"
	"slices"
	"strings"
)

// OneOf returns a string field validator accepting only the allowed values.
func OneOf(allowed ...string) func(string) error {
	return func(s string) error {
		if slices.Contains(allowed, s) {
			return nil
		}
		return fmt.Errorf("%q is not one of %s", s, strings.Join(allowed, "|"))
	}
}
