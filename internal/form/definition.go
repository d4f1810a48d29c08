// internal/form/definition.go
//
// Adept Users – Forms subsystem: field descriptors.
//
// Context
//   Every role-specific creation form is described by an ordered list of
//   FieldDescriptor values.  The role catalogue (internal/role) builds one
//   FieldSet per role at startup, merges any operator overrides, and hands
//   the frozen set to each Form it opens.  Validators, the state container,
//   and the submission pipeline only ever read descriptors through a FieldSet,
//   so the set is safe to share across any number of concurrent forms.
//
// Workflow
//   •  FieldDescriptor mirrors the YAML override schema (see internal/role).
//   •  NewFieldSet validates structural rules, compiles regex patterns, and
//      indexes descriptors by key.
//   •  Lookup and All give read-only access; no method mutates a set.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind is the input control type of a field.
type Kind string

const (
	KindText        Kind = "text"
	KindEmail       Kind = "email"
	KindPassword    Kind = "password"
	KindNumber      Kind = "number"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multi-select"
	KindFile        Kind = "file"
)

// Well-known keys.  The state container gives these keys special treatment.
const (
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldProfileImage    = "profileImage"
	FieldImageAlt        = "imageAlt"
)

var validKinds = map[Kind]bool{
	KindText:        true,
	KindEmail:       true,
	KindPassword:    true,
	KindNumber:      true,
	KindSelect:      true,
	KindMultiSelect: true,
	KindFile:        true,
}

// Rule holds optional validation metadata for one field.
//
// For multi-select fields Min and Max bound the number of selected items; for
// number fields they bound the value itself.  Matches names another field
// whose value this one must equal (password confirmation).
type Rule struct {
	Pattern   string   `yaml:"pattern"`   // Regex pattern string.
	MinLength int      `yaml:"minlength"` // ≥ 0, 0 means unset.
	MaxLength int      `yaml:"maxlength"` // ≥ 0, 0 means unset.
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Options   []string `yaml:"options"` // Allowed select values.  Empty means any.
	Matches   string   `yaml:"matches"`
	Message   string   `yaml:"error"` // Custom error message, optional.

	re *regexp.Regexp
}

// FieldDescriptor describes a single input on a creation form.
type FieldDescriptor struct {
	Key      string `yaml:"key"`      // Payload property.  Required.
	Label    string `yaml:"label"`    // Human-readable label.  Required.
	Kind     Kind   `yaml:"kind"`     // One of the Kind constants.
	Required bool   `yaml:"required"` // True if input is mandatory.
	Rule     *Rule  `yaml:"rule"`     // Optional.
}

// FieldSet is an immutable, ordered collection of descriptors.
type FieldSet struct {
	fields []FieldDescriptor
	index  map[string]int
}

// NewFieldSet validates fields and returns the frozen set.  Rules are copied,
// so later changes to the caller's values never leak into the set.
func NewFieldSet(fields ...FieldDescriptor) (*FieldSet, error) {
	if len(fields) == 0 {
		return nil, errors.New("field set: no fields")
	}

	s := &FieldSet{
		fields: make([]FieldDescriptor, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if err := validateDescriptor(&f); err != nil {
			return nil, err
		}
		if _, dup := s.index[f.Key]; dup {
			return nil, fmt.Errorf("field set: duplicate key %q", f.Key)
		}
		if f.Rule != nil {
			r := *f.Rule
			r.Options = append([]string(nil), f.Rule.Options...)
			if r.Pattern != "" {
				r.re = regexp.MustCompile(r.Pattern) // pre-validated above
			}
			f.Rule = &r
		}
		s.index[f.Key] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	for _, f := range s.fields {
		if f.Rule == nil || f.Rule.Matches == "" {
			continue
		}
		if _, ok := s.index[f.Rule.Matches]; !ok {
			return nil, fmt.Errorf("field set: field %q matches unknown field %q", f.Key, f.Rule.Matches)
		}
	}
	return s, nil
}

// Lookup returns the descriptor for key.
func (s *FieldSet) Lookup(key string) (FieldDescriptor, bool) {
	i, ok := s.index[key]
	if !ok {
		return FieldDescriptor{}, false
	}
	return s.fields[i], true
}

// Has reports whether key is declared in the set.
func (s *FieldSet) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// All returns the descriptors in declaration order.
func (s *FieldSet) All() []FieldDescriptor {
	return append([]FieldDescriptor(nil), s.fields...)
}

// validateDescriptor confirms that essential attributes are present and sane.
func validateDescriptor(f *FieldDescriptor) error {
	if f.Key == "" {
		return errors.New("field set: field missing 'key'")
	}
	if f.Label == "" {
		return fmt.Errorf("field set: field %q missing 'label'", f.Key)
	}
	if !validKinds[f.Kind] {
		return fmt.Errorf("field set: field %q has unsupported kind %q", f.Key, f.Kind)
	}
	if f.Rule == nil {
		return nil
	}

	r := f.Rule
	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("field set: field %q invalid regex pattern: %v", f.Key, err)
		}
	}
	if r.MinLength < 0 || r.MaxLength < 0 {
		return fmt.Errorf("field set: field %q minlength/maxlength cannot be negative", f.Key)
	}
	if r.MaxLength > 0 && r.MinLength > r.MaxLength {
		return fmt.Errorf("field set: field %q minlength greater than maxlength", f.Key)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("field set: field %q min greater than max", f.Key)
	}
	if r.Matches == f.Key {
		return fmt.Errorf("field set: field %q cannot match itself", f.Key)
	}
	return nil
}
