// internal/role/role.go
//
// Adept Users – role catalogue.
//
// Context
//   The back-office creates five kinds of user.  Each role is a Variant: its
//   own ordered field descriptors, default values, typed request payload, and
//   post-create actions.  The catalogue resolves a Variant once, when a form
//   is opened, instead of re-interpreting untyped configuration on every
//   access.  After Load returns, every Variant is immutable and shared by all
//   forms of that role.
//
// Workflow
//   •  builtins declares the descriptors compiled into the binary.
//   •  Load merges operator overrides from `<dir>/*.yaml` (overrides.go),
//      freezes each descriptor list into a form.FieldSet, and resolves the
//      declared actions through the supplied ActionFactory.
//   •  Variant.Options wires a Variant into form.Options for form.New.
//
//------------------------------------------------------------------------------

package role

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/adept-users/internal/form"
)

// Role identifies the kind of user a form creates.
type Role string

const (
	Admin       Role = "admin"
	Sales       Role = "sales"
	Maintenance Role = "maintenance"
	Accountant  Role = "accountant"
	Support     Role = "support"
)

// ErrUnknownRole is returned for names outside the fixed enumeration.
var ErrUnknownRole = errors.New("role: unknown role")

// All lists every role in display order.
func All() []Role {
	return []Role{Admin, Sales, Maintenance, Accountant, Support}
}

// Parse maps a case-insensitive name to a Role.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(All(), r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// Variant is the frozen configuration of one role.
type Variant struct {
	Role     Role
	Title    string
	Fields   *form.FieldSet
	Defaults map[string]any
	Payload  form.PayloadFunc

	ActionDefs []ActionDef
	Actions    []form.Action
}

// Options returns form.Options for a new form of this role.
func (v *Variant) Options(creator form.Creator, val *form.Validator, upload form.UploadLimits, log *zap.SugaredLogger) form.Options {
	return form.Options{
		Role:      string(v.Role),
		Fields:    v.Fields,
		Defaults:  v.Defaults,
		Validator: val,
		Upload:    upload,
		Creator:   creator,
		Payload:   v.Payload,
		Actions:   v.Actions,
		Logger:    log,
	}
}

// Catalogue maps every Role to its Variant.
type Catalogue struct {
	variants map[Role]*Variant
}

// Variant returns the configuration for r.
func (c *Catalogue) Variant(r Role) (*Variant, error) {
	v, ok := c.variants[r]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, r)
	}
	return v, nil
}

// Roles lists the catalogued roles in display order.
func (c *Catalogue) Roles() []Role {
	out := make([]Role, 0, len(c.variants))
	for _, r := range All() {
		if _, ok := c.variants[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Built-in definitions
// -----------------------------------------------------------------------------

type builtin struct {
	title    string
	fields   []form.FieldDescriptor
	defaults map[string]any
	payload  form.PayloadFunc
}

func ptr(f float64) *float64 { return &f }

// commonHead and commonTail surround the role-specific fields.
func commonHead() []form.FieldDescriptor {
	return []form.FieldDescriptor{
		{Key: "name", Label: "Full name", Kind: form.KindText, Required: true,
			Rule: &form.Rule{MinLength: 2, MaxLength: 100}},
		{Key: "email", Label: "Email", Kind: form.KindEmail, Required: true,
			Rule: &form.Rule{MaxLength: 254}},
		{Key: "phone", Label: "Phone", Kind: form.KindText,
			Rule: &form.Rule{Pattern: `^\+?[0-9][0-9 \-]{6,19}$`, Message: "Please enter a valid phone number."}},
		{Key: form.FieldPassword, Label: "Password", Kind: form.KindPassword, Required: true},
		{Key: form.FieldConfirmPassword, Label: "Confirm password", Kind: form.KindPassword, Required: true,
			Rule: &form.Rule{Matches: form.FieldPassword}},
	}
}

func commonTail() []form.FieldDescriptor {
	return []form.FieldDescriptor{
		{Key: form.FieldProfileImage, Label: "Profile image", Kind: form.KindFile},
		{Key: form.FieldImageAlt, Label: "Image description", Kind: form.KindText,
			Rule: &form.Rule{MaxLength: 150}},
	}
}

func withCommon(specific ...form.FieldDescriptor) []form.FieldDescriptor {
	out := commonHead()
	out = append(out, specific...)
	return append(out, commonTail()...)
}

func builtins() map[Role]builtin {
	return map[Role]builtin{
		Admin: {
			title: "Administrator",
			fields: withCommon(
				form.FieldDescriptor{Key: "permissions", Label: "Permissions", Kind: form.KindMultiSelect, Required: true,
					Rule: &form.Rule{Min: ptr(1)}},
			),
			payload: decodePayload[AdminPayload],
		},
		Sales: {
			title: "Sales representative",
			fields: withCommon(
				form.FieldDescriptor{Key: "governorates", Label: "Governorates", Kind: form.KindMultiSelect, Required: true,
					Rule: &form.Rule{Min: ptr(1), Message: "Select at least one governorate."}},
				form.FieldDescriptor{Key: "monthlyTarget", Label: "Monthly target", Kind: form.KindNumber,
					Rule: &form.Rule{Min: ptr(0)}},
			),
			payload: decodePayload[SalesPayload],
		},
		Maintenance: {
			title: "Maintenance technician",
			fields: withCommon(
				form.FieldDescriptor{Key: "specialization", Label: "Specialization", Kind: form.KindSelect, Required: true,
					Rule: &form.Rule{Options: []string{"general", "electrical", "plumbing", "hvac", "mechanical"}}},
				form.FieldDescriptor{Key: "yearsExperience", Label: "Years of experience", Kind: form.KindNumber,
					Rule: &form.Rule{Min: ptr(0), Max: ptr(60)}},
			),
			defaults: map[string]any{"specialization": "general"},
			payload:  decodePayload[MaintenancePayload],
		},
		Accountant: {
			title: "Accountant",
			fields: withCommon(
				form.FieldDescriptor{Key: "department", Label: "Department", Kind: form.KindSelect, Required: true,
					Rule: &form.Rule{Options: []string{"payables", "receivables", "payroll", "tax", "audit"}}},
			),
			payload: decodePayload[AccountantPayload],
		},
		Support: {
			title: "Support agent",
			fields: withCommon(
				form.FieldDescriptor{Key: "languages", Label: "Languages", Kind: form.KindMultiSelect},
				form.FieldDescriptor{Key: "shift", Label: "Shift", Kind: form.KindSelect, Required: true,
					Rule: &form.Rule{Options: []string{"morning", "evening", "night"}}},
			),
			defaults: map[string]any{"shift": "morning"},
			payload:  decodePayload[SupportPayload],
		},
	}
}
