// internal/form/validate_test.go
//
// Unit-tests for the field validator.
//
// Context
// -------
// The validator is pure, so every case here is a table row: descriptor,
// candidate value, expected messages.  Descriptors are built through
// NewFieldSet so pattern rules are compiled exactly as in production.

package form

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

// compiled returns d as stored by a FieldSet.
func compiled(t *testing.T, d FieldDescriptor) FieldDescriptor {
	t.Helper()
	fs, err := NewFieldSet(d)
	require.NoError(t, err)
	out, ok := fs.Lookup(d.Key)
	require.True(t, ok)
	return out
}

func TestValidateField(t *testing.T) {
	email := FieldDescriptor{Key: "email", Label: "Email", Kind: KindEmail, Required: true}

	tests := []struct {
		name  string
		desc  FieldDescriptor
		value any
		want  []string
	}{
		{"required email empty", email, "", []string{MsgRequired}},
		{"required email nil", email, nil, []string{MsgRequired}},
		{"required email blank", email, "   ", []string{MsgRequired}},
		{"malformed email", email, "not-an-email", []string{MsgInvalidEmail}},
		{"valid email", email, "ops@example.com", nil},
		{
			"email over max length",
			FieldDescriptor{Key: "email", Label: "Email", Kind: KindEmail, Rule: &Rule{MaxLength: 10}},
			"long.address@example.com",
			[]string{"Must be at most 10 characters."},
		},
		{
			"optional empty text",
			FieldDescriptor{Key: "phone", Label: "Phone", Kind: KindText},
			"",
			nil,
		},
		{
			"custom required message",
			FieldDescriptor{
				Key: "governorates", Label: "Governorates", Kind: KindMultiSelect, Required: true,
				Rule: &Rule{Message: "Select at least one governorate."},
			},
			[]int64{},
			[]string{"Select at least one governorate."},
		},
		{
			"text too short",
			FieldDescriptor{Key: "name", Label: "Name", Kind: KindText, Rule: &Rule{MinLength: 2}},
			"A",
			[]string{"Must be at least 2 characters."},
		},
		{
			"pattern mismatch",
			FieldDescriptor{Key: "phone", Label: "Phone", Kind: KindText, Rule: &Rule{Pattern: `^\d+$`}},
			"12ab",
			[]string{MsgPattern},
		},
		{
			"pattern custom message",
			FieldDescriptor{
				Key: "phone", Label: "Phone", Kind: KindText,
				Rule: &Rule{Pattern: `^\d+$`, Message: "Digits only."},
			},
			"12ab",
			[]string{"Digits only."},
		},
		{
			"select outside options",
			FieldDescriptor{
				Key: "shift", Label: "Shift", Kind: KindSelect,
				Rule: &Rule{Options: []string{"morning", "evening"}},
			},
			"night",
			[]string{MsgInvalid},
		},
		{
			"select inside options",
			FieldDescriptor{
				Key: "shift", Label: "Shift", Kind: KindSelect,
				Rule: &Rule{Options: []string{"morning", "evening"}},
			},
			"evening",
			nil,
		},
		{
			"text with wrong type",
			FieldDescriptor{Key: "name", Label: "Name", Kind: KindText},
			42,
			[]string{MsgInvalid},
		},
		{
			"number not numeric",
			FieldDescriptor{Key: "target", Label: "Target", Kind: KindNumber},
			"lots",
			[]string{MsgInvalidNumber},
		},
		{
			"number below min",
			FieldDescriptor{Key: "target", Label: "Target", Kind: KindNumber, Rule: &Rule{Min: ptr(0)}},
			-1.5,
			[]string{"Must be at least 0."},
		},
		{
			"number above max",
			FieldDescriptor{Key: "years", Label: "Years", Kind: KindNumber, Rule: &Rule{Max: ptr(60)}},
			json.Number("61"),
			[]string{"Must be at most 60."},
		},
		{
			"zero is a value",
			FieldDescriptor{Key: "target", Label: "Target", Kind: KindNumber, Required: true},
			0.0,
			nil,
		},
		{
			"numeric string",
			FieldDescriptor{Key: "target", Label: "Target", Kind: KindNumber},
			" 12.5 ",
			nil,
		},
		{
			"too many selected",
			FieldDescriptor{Key: "langs", Label: "Languages", Kind: KindMultiSelect, Rule: &Rule{Max: ptr(2)}},
			[]int64{1, 2, 3},
			[]string{"Select at most 2."},
		},
		{
			"selection with bad id",
			FieldDescriptor{Key: "langs", Label: "Languages", Kind: KindMultiSelect},
			[]any{"x"},
			[]string{MsgInvalid},
		},
		{
			"file not a file",
			FieldDescriptor{Key: FieldProfileImage, Label: "Image", Kind: KindFile},
			"photo.png",
			[]string{MsgInvalid},
		},
		{
			"confirmation skips strength",
			FieldDescriptor{Key: "confirm", Label: "Confirm", Kind: KindPassword, Rule: &Rule{Matches: "pw"}},
			"a",
			nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.desc
			if d.Rule == nil || d.Rule.Matches == "" {
				d = compiled(t, d)
			}
			got := ValidateField(d, tc.value)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ValidateField mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateField_RequiredIsExclusive(t *testing.T) {
	kinds := []Kind{KindText, KindEmail, KindPassword, KindNumber, KindSelect, KindMultiSelect, KindFile}
	for _, k := range kinds {
		t.Run(string(k), func(t *testing.T) {
			d := compiled(t, FieldDescriptor{
				Key: "f", Label: "F", Kind: k, Required: true,
				Rule: &Rule{Pattern: `^x$`, MinLength: 3},
			})
			for _, empty := range []any{nil, "", []int64{}, (*File)(nil)} {
				assert.Equal(t, []string{MsgRequired}, ValidateField(d, empty))
			}
		})
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	t.Run("short and missing digit", func(t *testing.T) {
		got := ValidatePasswordStrength("abc", PasswordPolicy{MinLength: 6, RequireDigit: true})
		assert.Equal(t, []string{
			"Password must be at least 6 characters.",
			"Password must contain at least one digit.",
		}, got)
	})

	counts := map[string]int{
		"":          4,
		"abc":       3,
		"ABCDEFGH":  2,
		"abcdefgh1": 1,
		"Abcdefgh1": 0,
		"Ab1":       1,
	}
	for pw, want := range counts {
		t.Run(fmt.Sprintf("default policy %q", pw), func(t *testing.T) {
			assert.Len(t, ValidatePasswordStrength(pw, DefaultPasswordPolicy), want)
		})
	}

	t.Run("symbol rule", func(t *testing.T) {
		p := PasswordPolicy{MinLength: 1, RequireSymbol: true}
		assert.Equal(t, []string{"Password must contain at least one symbol."},
			ValidatePasswordStrength("abc", p))
		assert.Empty(t, ValidatePasswordStrength("ab!c", p))
	})

	t.Run("length counts runes", func(t *testing.T) {
		p := PasswordPolicy{MinLength: 4}
		assert.Empty(t, ValidatePasswordStrength("éééé", p))
	})
}

func TestValidator_PasswordField(t *testing.T) {
	v := NewValidator(PasswordPolicy{MinLength: 6, RequireDigit: true})
	d := FieldDescriptor{Key: FieldPassword, Label: "Password", Kind: KindPassword, Required: true}

	assert.Len(t, v.ValidateField(d, "abc"), 2)
	assert.Empty(t, v.ValidateField(d, "abcdef1"))
	assert.Equal(t, PasswordPolicy{MinLength: 6, RequireDigit: true}, v.Policy())
}

func TestValidateFileUpload(t *testing.T) {
	allowed := AllowedImageTypes

	tests := []struct {
		name string
		file *File
		want string
	}{
		{"nil file", nil, ""},
		{"valid png", &File{Name: "a.png", Type: "image/png", Size: 1024}, ""},
		{"type with params", &File{Name: "a.jpg", Type: "Image/JPEG; q=1", Size: 1024}, ""},
		{"exactly at limit", &File{Name: "a.gif", Type: "image/gif", Size: MaxImageBytes}, ""},
		{
			"too large",
			&File{Name: "a.png", Type: "image/png", Size: MaxImageBytes + 1},
			"File is too large.  Maximum size is 5 MB.",
		},
		{
			"wrong type",
			&File{Name: "a.pdf", Type: "application/pdf", Size: 1024},
			`Unsupported file type "application/pdf".  Allowed types: image/jpeg, image/png, image/gif.`,
		},
		{
			"both violated reports size",
			&File{Name: "a.pdf", Type: "application/pdf", Size: 10 << 20},
			"File is too large.  Maximum size is 5 MB.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidateFileUpload(tc.file, MaxImageBytes, allowed))
		})
	}

	t.Run("odd limit in bytes", func(t *testing.T) {
		msg := ValidateFileUpload(&File{Type: "image/png", Size: 2000}, 1500, allowed)
		assert.Equal(t, "File is too large.  Maximum size is 1500 bytes.", msg)
	})
}

func TestToID(t *testing.T) {
	good := map[any]int64{
		1:                 1,
		int64(7):          7,
		3.0:               3,
		"42":              42,
		" 9 ":             9,
		json.Number("12"): 12,
	}
	for in, want := range good {
		got, ok := ToID(in)
		assert.True(t, ok, "ToID(%#v)", in)
		assert.Equal(t, want, got)
	}

	for _, in := range []any{0, -3, 2.5, "", "abc", "0", nil, true, json.Number("1.5")} {
		_, ok := ToID(in)
		assert.False(t, ok, "ToID(%#v) should fail", in)
	}
}

func TestToIDs(t *testing.T) {
	ids, ok := ToIDs([]any{1.0, "2", json.Number("3")})
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, ok = ToIDs(nil)
	assert.True(t, ok)
	assert.Empty(t, ids)

	_, ok = ToIDs([]any{1.0, 0})
	assert.False(t, ok)

	_, ok = ToIDs("1,2")
	assert.False(t, ok)
}
