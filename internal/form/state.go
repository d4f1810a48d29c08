// internal/form/state.go
//
// Adept Users – Forms subsystem: per-form state container.
//
// Context
//   A Form owns the mutable working set of one in-progress creation form:
//   field values, per-field errors, general errors, password-strength errors,
//   the staged image preview, and a handful of UI flags.  HTTP handlers call
//   into the same Form from concurrent requests, so every operation holds the
//   Form's mutex for its whole duration and no caller ever observes a
//   half-applied change.
//
// Workflow
//   •  New builds a Form from a role's FieldSet and default values.
//   •  UpdateField applies the clear-on-edit policy and recomputes password
//      strength errors.
//   •  Reset restores defaults, and Close discards the Form so late
//      asynchronous completions become no-ops.
//   •  Snapshot returns a deep copy suitable for JSON encoding.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors returned by Form operations.
var (
	ErrUnknownField   = errors.New("form: unknown field")
	ErrClosed         = errors.New("form: closed")
	ErrNotMultiSelect = errors.New("form: field is not a multi-select")
	ErrInvalidItem    = errors.New("form: invalid item id")
)

// Options configures a new Form.
type Options struct {
	Role      string
	Fields    *FieldSet
	Defaults  map[string]any // Per-key overrides of the kind zero values.
	Validator *Validator     // nil means DefaultPasswordPolicy.
	Upload    UploadLimits   // Zero value means DefaultUploadLimits.
	Creator   Creator
	Payload   PayloadFunc // nil means the raw field map minus files.
	Actions   []Action
	Logger    *zap.SugaredLogger
}

// Snapshot is a point-in-time copy of a Form's state.
type Snapshot struct {
	Role                string              `json:"role"`
	Fields              map[string]any      `json:"fields"`
	FieldErrors         map[string][]string `json:"fieldErrors"`
	GeneralErrors       []string            `json:"generalErrors"`
	PasswordErrors      []string            `json:"passwordErrors"`
	ImagePreview        string              `json:"imagePreview,omitempty"`
	ImageError          string              `json:"imageError,omitempty"`
	IsSubmitting        bool                `json:"isSubmitting"`
	ShowPassword        bool                `json:"showPassword"`
	ShowConfirmPassword bool                `json:"showConfirmPassword"`
	DropdownOpen        bool                `json:"dropdownOpen"`
}

// state is the guarded working set.
type state struct {
	fields         map[string]any
	fieldErrors    map[string][]string
	generalErrors  []string
	passwordErrors []string
	imagePreview   string
	imageError     string
	isSubmitting   bool

	showPassword        bool
	showConfirmPassword bool
	dropdownOpen        bool
}

// Form is one in-progress creation form.  Zero value is invalid; use New.
type Form struct {
	role      string
	set       *FieldSet
	defaults  map[string]any
	validator *Validator
	upload    UploadLimits
	creator   Creator
	payload   PayloadFunc
	actions   []Action
	log       *zap.SugaredLogger

	mu       sync.Mutex
	st       state
	imageGen uint64 // bumped whenever a staged image is replaced or dropped
	closed   bool
}

// New returns a Form initialised to the role's defaults.
func New(opts Options) (*Form, error) {
	if opts.Fields == nil {
		return nil, errors.New("form: field set is required")
	}
	if opts.Creator == nil {
		return nil, errors.New("form: creator is required")
	}
	for k := range opts.Defaults {
		if !opts.Fields.Has(k) {
			return nil, fmt.Errorf("%w: default for %q", ErrUnknownField, k)
		}
	}

	f := &Form{
		role:      opts.Role,
		set:       opts.Fields,
		defaults:  buildDefaults(opts.Fields, opts.Defaults),
		validator: opts.Validator,
		upload:    opts.Upload,
		creator:   opts.Creator,
		payload:   opts.Payload,
		actions:   opts.Actions,
		log:       opts.Logger,
	}
	if f.validator == nil {
		f.validator = defaultValidator
	}
	if f.upload.MaxBytes == 0 && len(f.upload.AllowedTypes) == 0 {
		f.upload = DefaultUploadLimits()
	}
	if f.payload == nil {
		f.payload = rawPayload(f.set)
	}
	if f.log == nil {
		f.log = zap.S()
	}
	f.log = f.log.With("role", f.role)

	f.resetLocked()
	return f, nil
}

// Role returns the role this form creates.
func (f *Form) Role() string { return f.role }

// Fields returns the form's descriptors in declaration order.
func (f *Form) Fields() []FieldDescriptor { return f.set.All() }

// Defaults returns a copy of the values Reset restores.
func (f *Form) Defaults() map[string]any { return cloneFields(f.defaults) }

// -----------------------------------------------------------------------------
// Field mutation
// -----------------------------------------------------------------------------

// UpdateField sets key to value.  It clears the field's own errors and every
// general error, recomputes password strength when key is the password, and
// clears password errors when key is the confirmation field.
func (f *Form) UpdateField(key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if !f.set.Has(key) {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	f.setLocked(key, value)
	return nil
}

// setLocked applies the clear-on-edit policy.  Caller holds f.mu.
func (f *Form) setLocked(key string, value any) {
	f.st.fields[key] = value
	delete(f.st.fieldErrors, key)
	f.st.generalErrors = nil

	switch key {
	case FieldPassword:
		f.recomputePasswordErrorsLocked()
	case FieldConfirmPassword:
		f.clearPasswordErrorsOnConfirmEdit()
	}
}

// recomputePasswordErrorsLocked re-runs the strength check.  An empty
// password has nothing to report until the user types.
func (f *Form) recomputePasswordErrorsLocked() {
	s, _ := f.st.fields[FieldPassword].(string)
	if s == "" {
		f.st.passwordErrors = nil
		return
	}
	f.st.passwordErrors = f.validator.PasswordStrength(s)
}

// clearPasswordErrorsOnConfirmEdit drops the strength errors whenever the
// confirmation field changes.  The errors concern strength rather than
// matching; this coupling is kept in one place so it can be removed alone.
func (f *Form) clearPasswordErrorsOnConfirmEdit() {
	f.st.passwordErrors = nil
}

// SetFieldError appends msg to key's error list.
func (f *Form) SetFieldError(key, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if !f.set.Has(key) {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	f.st.fieldErrors[key] = append(f.st.fieldErrors[key], msg)
	return nil
}

// ClearFieldError removes every error recorded against key.
func (f *Form) ClearFieldError(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	delete(f.st.fieldErrors, key)
	return nil
}

// -----------------------------------------------------------------------------
// Reset, toggles, and lifecycle
// -----------------------------------------------------------------------------

// Reset restores defaults, clears every error and the staged image, and
// collapses the UI flags.  An outstanding submission keeps its flag.
func (f *Form) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	f.resetLocked()
	return nil
}

func (f *Form) resetLocked() {
	submitting := f.st.isSubmitting
	f.st = state{
		fields:       cloneFields(f.defaults),
		fieldErrors:  make(map[string][]string),
		isSubmitting: submitting,
	}
	f.imageGen++
}

// TogglePasswordVisibility flips the password visibility flag.
func (f *Form) TogglePasswordVisibility() { f.toggle(&f.st.showPassword) }

// ToggleConfirmPasswordVisibility flips the confirmation visibility flag.
func (f *Form) ToggleConfirmPasswordVisibility() { f.toggle(&f.st.showConfirmPassword) }

// ToggleDropdown flips the multi-select dropdown flag.
func (f *Form) ToggleDropdown() { f.toggle(&f.st.dropdownOpen) }

func (f *Form) toggle(flag *bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		*flag = !*flag
	}
}

// Close discards the Form.  Every later mutation is a no-op or ErrClosed.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.imageGen++
}

// Closed reports whether Close has been called.
func (f *Form) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Snapshot returns a deep copy of the current state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	fe := make(map[string][]string, len(f.st.fieldErrors))
	for k, v := range f.st.fieldErrors {
		fe[k] = slices.Clone(v)
	}
	return Snapshot{
		Role:                f.role,
		Fields:              cloneFields(f.st.fields),
		FieldErrors:         fe,
		GeneralErrors:       nonNil(f.st.generalErrors),
		PasswordErrors:      nonNil(f.st.passwordErrors),
		ImagePreview:        f.st.imagePreview,
		ImageError:          f.st.imageError,
		IsSubmitting:        f.st.isSubmitting,
		ShowPassword:        f.st.showPassword,
		ShowConfirmPassword: f.st.showConfirmPassword,
		DropdownOpen:        f.st.dropdownOpen,
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// buildDefaults gives every declared key its kind's zero value, then applies
// overrides.
func buildDefaults(set *FieldSet, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(set.fields))
	for _, d := range set.fields {
		out[d.Key] = zeroValue(d.Kind)
	}
	maps.Copy(out, overrides)
	return cloneFields(out)
}

func zeroValue(k Kind) any {
	switch k {
	case KindMultiSelect:
		return []int64{}
	case KindNumber, KindFile:
		return nil
	default:
		return ""
	}
}

// cloneFields copies the map and any selection slices it holds.  Files are
// shared; they are never mutated after staging.
func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case []int64:
			out[k] = slices.Clone(x)
		case []string:
			out[k] = slices.Clone(x)
		case []any:
			out[k] = slices.Clone(x)
		default:
			out[k] = v
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
