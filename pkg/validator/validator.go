// Package validator wraps go-playground/validator/v10 for struct-tag-driven
// validation of adapter Config values.
package validator

import (
	"github.com/go-playground/validator/v10"

	"github.com/sns45/anyq/pkg/errors"
)

// Validator validates structs and individual values against validate tags.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator with the library's default tag set.
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct validates a struct using its `validate` tags. A failure is
// returned as a ConfigurationError wrapping the validator's error.
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return errors.ConfigurationError("invalid configuration", err)
	}
	return nil
}

// ValidateVar validates a single value against an inline tag.
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	return v.validate.Var(field, tag)
}
