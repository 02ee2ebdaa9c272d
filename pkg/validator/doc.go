/*
Package validator wraps go-playground/validator for validating adapter
Config structs before a connection is attempted, surfacing failures as
errors.ConfigurationError rather than a backend-specific connect error.

Usage:

	import "github.com/sns45/anyq/pkg/validator"

	v := validator.New()
	err := v.ValidateStruct(cfg)
*/
package validator
