// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var zipPattern = regexp.MustCompile(`^[0-9]{5}$`)

// ErrInvalidZip is the validation message for a malformed ZIP code.
var ErrInvalidZip = errors.New("ZIP code must be exactly 5 digits")

// ValidationError reports local, synchronous validation failures keyed by
// field. It never involves the network.
type ValidationError struct {
	Fields map[Field]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))

	for _, f := range []Field{FieldStreet, FieldLine2, FieldCity, FieldState, FieldZipCode, FieldCountry} {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", f, msg))
		}
	}

	return "invalid address: " + strings.Join(parts, "; ")
}

// ValidZip reports whether zip is a strict 5-digit ZIP code.
func ValidZip(zip string) bool {
	return zipPattern.MatchString(zip)
}

// ValidateZip returns a *ValidationError for anything but a 5-digit ZIP.
func ValidateZip(zip string) error {
	if ValidZip(zip) {
		return nil
	}

	return &ValidationError{Fields: map[Field]string{FieldZipCode: ErrInvalidZip.Error()}}
}

// manualEntry is the shape a manually typed address must satisfy before it
// is sent to the geocoder.
type manualEntry struct {
	Street  string `validate:"required,max=200"`
	Line2   string `validate:"max=100"`
	City    string `validate:"required,max=100"`
	State   string `validate:"required,max=50"`
	ZipCode string `validate:"required,zip5"`
}

var entryFields = map[string]Field{
	"Street":  FieldStreet,
	"Line2":   FieldLine2,
	"City":    FieldCity,
	"State":   FieldState,
	"ZipCode": FieldZipCode,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("zip5", func(fl validator.FieldLevel) bool {
		return ValidZip(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// ValidateManualEntry checks the fields a user must type before requesting
// verification.
func ValidateManualEntry(a StructuredAddress) error {
	err := validate.Struct(manualEntry{
		Street:  strings.TrimSpace(a.Street),
		Line2:   strings.TrimSpace(a.Line2),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		ZipCode: strings.TrimSpace(a.ZipCode),
	})
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating address: %w", err)
	}

	verr := &ValidationError{Fields: make(map[Field]string, len(fieldErrs))}

	for _, fe := range fieldErrs {
		f := entryFields[fe.Field()]

		switch fe.Tag() {
		case "required":
			verr.Fields[f] = "is required"
		case "zip5":
			verr.Fields[f] = ErrInvalidZip.Error()
		case "max":
			verr.Fields[f] = fmt.Sprintf("must be at most %s characters", fe.Param())
		default:
			verr.Fields[f] = "is invalid"
		}
	}

	return verr
}
