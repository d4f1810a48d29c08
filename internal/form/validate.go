// internal/form/validate.go
//
// Adept Users – Forms subsystem: field validation.
//
// Context
//   Validation is pure.  Given a descriptor and a candidate value, each helper
//   returns zero or more user-facing messages and never panics, whatever the
//   dynamic type of the value.  The state container calls these helpers on
//   every password keystroke and again for the whole form at submit time.
//
// Workflow
//   •  ValidateField short-circuits on a missing required value, then applies
//      kind-specific checks (email format, password strength, length, regex,
//      numeric range, option membership, and selection counts).
//   •  ValidatePasswordStrength reports one message per violated rule so the
//      user sees every outstanding requirement at once.
//   •  ValidateFileUpload lives in upload.go next to the File type.
//
//------------------------------------------------------------------------------

package form

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// User-facing messages.
const (
	MsgRequired         = "This field is required."
	MsgInvalid          = "Invalid input."
	MsgInvalidEmail     = "Please enter a valid email address."
	MsgInvalidNumber    = "Please enter a valid number."
	MsgPattern          = "Input does not match required format."
	MsgPasswordMismatch = "Passwords do not match."
)

// PasswordPolicy lists the strength rules applied to password fields.
type PasswordPolicy struct {
	MinLength     int  `koanf:"min_length" validate:"gte=1"`
	RequireDigit  bool `koanf:"require_digit"`
	RequireUpper  bool `koanf:"require_upper"`
	RequireLower  bool `koanf:"require_lower"`
	RequireSymbol bool `koanf:"require_symbol"`
}

// DefaultPasswordPolicy is used when configuration does not override it.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:    8,
	RequireDigit: true,
	RequireUpper: true,
	RequireLower: true,
}

// Validator applies descriptors with a fixed password policy.  It is
// immutable and safe for concurrent use.
type Validator struct {
	policy PasswordPolicy
	tags   *validator.Validate
}

// NewValidator returns a Validator enforcing policy.
func NewValidator(policy PasswordPolicy) *Validator {
	return &Validator{policy: policy, tags: validator.New()}
}

var defaultValidator = NewValidator(DefaultPasswordPolicy)

// ValidateField validates value against d using DefaultPasswordPolicy.
func ValidateField(d FieldDescriptor, value any) []string {
	return defaultValidator.ValidateField(d, value)
}

// Policy returns the password policy in force.
func (v *Validator) Policy() PasswordPolicy { return v.policy }

// PasswordStrength checks value against the validator's policy.
func (v *Validator) PasswordStrength(value string) []string {
	return ValidatePasswordStrength(value, v.policy)
}

// ValidateField returns the messages for value, or nil when it is valid.
func (v *Validator) ValidateField(d FieldDescriptor, value any) []string {
	if isEmpty(value) {
		if d.Required {
			return []string{requiredMsg(d)}
		}
		return nil
	}

	switch d.Kind {
	case KindEmail:
		s, ok := toString(value)
		if !ok || v.tags.Var(strings.TrimSpace(s), "required,email") != nil {
			return []string{customOr(d, MsgInvalidEmail)}
		}
		return one(lengthCheck(d, s))

	case KindPassword:
		s, ok := toString(value)
		if !ok {
			return []string{customOr(d, MsgInvalid)}
		}
		// Confirmation fields are checked by the cross-field rule instead.
		if d.Rule != nil && d.Rule.Matches != "" {
			return nil
		}
		return v.PasswordStrength(s)

	case KindText, KindSelect:
		s, ok := toString(value)
		if !ok {
			return []string{customOr(d, MsgInvalid)}
		}
		s = strings.TrimSpace(s)
		if msg := lengthCheck(d, s); msg != "" {
			return []string{msg}
		}
		if d.Rule != nil && d.Rule.re != nil && !d.Rule.re.MatchString(s) {
			return []string{customOr(d, MsgPattern)}
		}
		if d.Rule != nil && len(d.Rule.Options) > 0 && !lo.Contains(d.Rule.Options, s) {
			return []string{customOr(d, MsgInvalid)}
		}
		return nil

	case KindNumber:
		n, ok := toFloat(value)
		if !ok {
			return []string{customOr(d, MsgInvalidNumber)}
		}
		return one(rangeCheck(d, n, "Must be at least %s.", "Must be at most %s."))

	case KindMultiSelect:
		ids, ok := ToIDs(value)
		if !ok {
			return []string{customOr(d, MsgInvalid)}
		}
		return one(rangeCheck(d, float64(len(ids)), "Select at least %s.", "Select at most %s."))

	case KindFile:
		if _, ok := value.(*File); !ok {
			return []string{customOr(d, MsgInvalid)}
		}
		return nil

	default:
		return []string{fmt.Sprintf("Unsupported field type %q.", d.Kind)}
	}
}

// ValidatePasswordStrength evaluates every rule in p and returns one message
// per violation, in a stable order.
func ValidatePasswordStrength(value string, p PasswordPolicy) []string {
	var (
		errs                        []string
		digit, upper, lower, symbol bool
	)
	for _, r := range value {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.MinLength > 0 && len([]rune(value)) < p.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters.", p.MinLength))
	}
	if p.RequireDigit && !digit {
		errs = append(errs, "Password must contain at least one digit.")
	}
	if p.RequireUpper && !upper {
		errs = append(errs, "Password must contain at least one uppercase letter.")
	}
	if p.RequireLower && !lower {
		errs = append(errs, "Password must contain at least one lowercase letter.")
	}
	if p.RequireSymbol && !symbol {
		errs = append(errs, "Password must contain at least one symbol.")
	}
	return errs
}

// -----------------------------------------------------------------------------
// Rule helpers
// -----------------------------------------------------------------------------

// lengthCheck validates minlength / maxlength rules.
func lengthCheck(d FieldDescriptor, s string) string {
	if d.Rule == nil {
		return ""
	}
	n := len([]rune(s))
	if d.Rule.MinLength > 0 && n < d.Rule.MinLength {
		return fmt.Sprintf("Must be at least %d characters.", d.Rule.MinLength)
	}
	if d.Rule.MaxLength > 0 && n > d.Rule.MaxLength {
		return fmt.Sprintf("Must be at most %d characters.", d.Rule.MaxLength)
	}
	return ""
}

func rangeCheck(d FieldDescriptor, n float64, minFmt, maxFmt string) string {
	if d.Rule == nil {
		return ""
	}
	if d.Rule.Min != nil && n < *d.Rule.Min {
		return fmt.Sprintf(minFmt, formatNumber(*d.Rule.Min))
	}
	if d.Rule.Max != nil && n > *d.Rule.Max {
		return fmt.Sprintf(maxFmt, formatNumber(*d.Rule.Max))
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func one(msg string) []string {
	if msg == "" {
		return nil
	}
	return []string{msg}
}

func requiredMsg(d FieldDescriptor) string {
	if d.Rule != nil && d.Rule.Message != "" {
		return d.Rule.Message
	}
	return MsgRequired
}

func customOr(d FieldDescriptor, fallback string) string {
	if d.Rule != nil && d.Rule.Message != "" {
		return d.Rule.Message
	}
	return fallback
}

// -----------------------------------------------------------------------------
// Value helpers
// -----------------------------------------------------------------------------

// isEmpty treats nil, blank strings, empty selections, and a missing file as
// "no value".  Zero is a value.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case json.Number:
		return x == ""
	case []int64:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case *File:
		return x == nil
	default:
		return false
	}
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToID converts a numeric-looking item identifier to int64.  Zero, negative,
// fractional, and non-numeric inputs are rejected.
func ToID(v any) (int64, bool) {
	var id int64
	switch x := v.(type) {
	case int:
		id = int64(x)
	case int64:
		id = x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || x > math.MaxInt64 {
			return 0, false
		}
		id = int64(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}
	return id, id > 0
}

// ToIDs converts a selection value to []int64.  Any invalid element rejects
// the whole value.
func ToIDs(v any) ([]int64, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case []int64:
		return x, true
	case []any:
		out := make([]int64, 0, len(x))
		for _, e := range x {
			id, ok := ToID(e)
			if !ok {
				return nil, false
			}
			out = append(out, id)
		}
		return out, true
	default:
		return nil, false
	}
}
