package role

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Profile holds the attributes every role shares.  Passwords travel to the
// creation API only; they are never logged or audited.
type Profile struct {
	Name     string `mapstructure:"name" json:"name"`
	Email    string `mapstructure:"email" json:"email"`
	Phone    string `mapstructure:"phone" json:"phone,omitempty"`
	Password string `mapstructure:"password" json:"password"`
	ImageAlt string `mapstructure:"imageAlt" json:"imageAlt,omitempty"`
}

type AdminPayload struct {
	Profile     `mapstructure:",squash"`
	Permissions []int64 `mapstructure:"permissions" json:"permissions"`
}

type SalesPayload struct {
	Profile       `mapstructure:",squash"`
	Governorates  []int64  `mapstructure:"governorates" json:"governorates"`
	MonthlyTarget *float64 `mapstructure:"monthlyTarget" json:"monthlyTarget,omitempty"`
}

type MaintenancePayload struct {
	Profile         `mapstructure:",squash"`
	Specialization  string   `mapstructure:"specialization" json:"specialization"`
	YearsExperience *float64 `mapstructure:"yearsExperience" json:"yearsExperience,omitempty"`
}

type AccountantPayload struct {
	Profile    `mapstructure:",squash"`
	Department string `mapstructure:"department" json:"department"`
}

type SupportPayload struct {
	Profile   `mapstructure:",squash"`
	Languages []int64 `mapstructure:"languages" json:"languages"`
	Shift     string  `mapstructure:"shift" json:"shift"`
}

// decodePayload maps the form's raw field values onto P.  Number fields may
// still hold the string the user typed, so decoding is weakly typed.
func decodePayload[P any](fields map[string]any) (any, error) {
	var out P
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		ZeroFields:       true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("role payload: %w", err)
	}
	return out, nil
}
