// internal/form/helpers_test.go
//
// Shared fixtures for the form package tests.
//
// Context
// -------
// Most tests need a realistic field set (profile fields, a password pair, a
// multi-select, and the image slot) plus a Creator they can script.  Keeping
// those here lets each test file focus on one behaviour.

package form

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Polling bounds for require.Eventually.
const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// testFields returns the field set used across the package tests.
func testFields(t *testing.T) *FieldSet {
	t.Helper()
	fs, err := NewFieldSet(
		FieldDescriptor{Key: "name", Label: "Full name", Kind: KindText, Required: true},
		FieldDescriptor{Key: "email", Label: "Email", Kind: KindEmail, Required: true},
		FieldDescriptor{Key: FieldPassword, Label: "Password", Kind: KindPassword, Required: true},
		FieldDescriptor{
			Key: FieldConfirmPassword, Label: "Confirm password", Kind: KindPassword, Required: true,
			Rule: &Rule{Matches: FieldPassword},
		},
		FieldDescriptor{Key: "governorates", Label: "Governorates", Kind: KindMultiSelect},
		FieldDescriptor{Key: FieldProfileImage, Label: "Profile image", Kind: KindFile},
		FieldDescriptor{Key: FieldImageAlt, Label: "Image description", Kind: KindText},
	)
	require.NoError(t, err)
	return fs
}

// stubCreator counts calls and answers with a scripted response.
type stubCreator struct {
	calls atomic.Int32
	last  atomic.Pointer[CreateRequest]
	fn    func(ctx context.Context, req CreateRequest) (CreateResponse, error)
}

func (s *stubCreator) CreateUser(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	s.calls.Add(1)
	s.last.Store(&req)
	if s.fn == nil {
		return CreateResponse{Success: true, User: map[string]any{"id": "u-1"}}, nil
	}
	return s.fn(ctx, req)
}

// newTestForm builds a form over testFields with the given creator.
func newTestForm(t *testing.T, c Creator) *Form {
	t.Helper()
	if c == nil {
		c = &stubCreator{}
	}
	f, err := New(Options{Role: "sales", Fields: testFields(t), Creator: c})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

// fillValid sets every required field to a passing value.
func fillValid(t *testing.T, f *Form) {
	t.Helper()
	require.NoError(t, f.UpdateField("name", "Mona Hassan"))
	require.NoError(t, f.UpdateField("email", "mona@example.com"))
	require.NoError(t, f.UpdateField(FieldPassword, "Abc12345"))
	require.NoError(t, f.UpdateField(FieldConfirmPassword, "Abc12345"))
}

// pngBytes encodes a solid w×h PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG signature and IHDR chunk for a w×h RGBA image
// with no pixel data.  image.DecodeConfig accepts it; image.Decode does not.
func pngHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(ihdr))))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	require.NoError(t, binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk)))
	return buf.Bytes()
}
