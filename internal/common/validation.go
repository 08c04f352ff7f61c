package common

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError describes one rejected setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Message)
}

// Rule checks one value and returns a message, empty when accepted.
type Rule func(value any) string

// Validator collects every failure instead of stopping at the first.
type Validator struct {
	errs []ValidationError
}

func NewValidator() *Validator { return &Validator{} }

// Field applies rules to value and records each failure under name.
func (v *Validator) Field(name string, value any, rules ...Rule) *Validator {
	for _, rule := range rules {
		if msg := rule(value); msg != "" {
			v.errs = append(v.errs, ValidationError{Field: name, Value: value, Message: msg})
		}
	}
	return v
}

func (v *Validator) Errors() []ValidationError { return v.errs }

// Error joins the failures, or returns nil.
func (v *Validator) Error() error {
	if len(v.errs) == 0 {
		return nil
	}
	errs := make([]error, len(v.errs))
	for i, e := range v.errs {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Range accepts numbers within [lo, hi].
func Range(lo, hi float64) Rule {
	return func(value any) string {
		var f float64
		switch n := value.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		default:
			return "must be a number"
		}
		if f < lo || f > hi {
			return fmt.Sprintf("must be between %g and %g", lo, hi)
		}
		return ""
	}
}

// OneOf accepts strings from a fixed set.
func OneOf(allowed ...string) Rule {
	return func(value any) string {
		s, _ := value.(string)
		if !slices.Contains(allowed, s) {
			return "must be one of " + strings.Join(allowed, ", ")
		}
		return ""
	}
}

// NonNegativeDuration rejects negative durations.
func NonNegativeDuration(value any) string {
	d, ok := value.(time.Duration)
	if !ok {
		return "must be a duration"
	}
	if d < 0 {
		return "must not be negative"
	}
	return ""
}
