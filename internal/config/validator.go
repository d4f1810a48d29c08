// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, so the binary never runs
// with partial or malformed configuration.
//
// One custom rule is registered: `mime`, which checks that upload type
// entries look like `type/subtype`.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	_ = val.RegisterValidation("mime", func(fl validator.FieldLevel) bool {
		typ, sub, ok := strings.Cut(fl.Field().String(), "/")
		return ok && typ != "" && sub != "" && !strings.ContainsAny(sub, " /")
	})
	return val
}

// validateStruct returns a readable summary of every violation, or nil.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	for _, t := range c.Upload.AllowedTypes {
		if err := v.Var(t, "mime"); err != nil {
			return fmt.Errorf("upload.allowed_types: %q is not a MIME type", t)
		}
	}
	return nil
}
