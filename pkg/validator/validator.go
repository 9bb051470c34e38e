// Package validator checks decoded configuration values. Checks return nil
// on success so they compose with All.
package validator

import (
	"errors"
	"fmt"
	"slices"
)

// All reports every failed check, or nil when all passed.
func All(checks ...error) error {
	return errors.Join(checks...)
}

type Validatable interface {
	Validate() error
}

// Each validates every item, prefixing failures with description[i].
func Each[T Validatable](items []T, description string) error {
	var errs []error
	for i, item := range items {
		if err := item.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", description, i, err))
		}
	}
	return errors.Join(errs...)
}

func NotEmpty(value, description string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

// NoDuplicates reports the first value that occurs twice.
func NoDuplicates[T comparable](values []T, description string) error {
	for i, v := range values {
		if slices.Contains(values[:i], v) {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
	}
	return nil
}

func OneOf[T comparable](value T, allowed []T, description string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %v, got %v", description, allowed, value)
}
