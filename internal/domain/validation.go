package domain

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// tagValidators maps struct-tag names to the parser that accepts the field.
var tagValidators = map[string]func(string) error{
	"strategy":     func(s string) error { _, err := ParseStrategy(s); return err },
	"rewardkind":   func(s string) error { _, err := ParseRewardKind(s); return err },
	"boundformula": func(s string) error { _, err := ParseBoundFormula(s); return err },
	"costmodel":    func(s string) error { _, err := ParseCostModel(s); return err },
	"objective":    func(s string) error { _, err := ParseObjective(s); return err },
	"algorithm":    func(s string) error { _, err := ParseAlgorithm(s); return err },
}

// RegisterValidators registers the tag validators used by domain struct
// tags (costmodel, objective, algorithm, rewardkind, boundformula, strategy)
// and "finite", which rejects NaN and infinite floats. Empty tag values
// pass; combine with "required" where a tag is mandatory.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("finite", validateFinite); err != nil {
		return fmt.Errorf("failed to register finite validator: %w", err)
	}
	for tag, parse := range tagValidators {
		fn := func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			return value == "" || parse(value) == nil
		}
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateFinite fails NaN and infinite floats. The min and max tags
// compare with < and >, which NaN always passes.
func validateFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		return IsFinite(fl.Field().Float())
	default:
		return true
	}
}

// NewValidator returns a validator with the domain tag validators registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterValidators(v); err != nil {
		// Registration only fails for empty tags or nil functions.
		panic(err)
	}
	return v
}
