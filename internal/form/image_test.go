// internal/form/image_test.go
//
// Unit-tests for profile image selection.
//
// Context
// -------
// SelectImage validates synchronously and decodes the preview in a goroutine.
// Each test waits on the returned channel before inspecting state, so the
// assertions never race the decoder.

package form

import (
	"bytes"
	"encoding/base64"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectImage_Nil(t *testing.T) {
	f := newTestForm(t, nil)
	<-f.SelectImage(nil)

	snap := f.Snapshot()
	assert.Nil(t, snap.Fields[FieldProfileImage])
	assert.Empty(t, snap.ImageError)
}

func TestSelectImage_Rejections(t *testing.T) {
	tests := []struct {
		name string
		file *File
		want string
	}{
		{
			"too large",
			&File{Name: "big.png", Type: "image/png", Size: 6 << 20},
			"File is too large.  Maximum size is 5 MB.",
		},
		{
			"wrong type",
			&File{Name: "cv.pdf", Type: "application/pdf", Data: []byte("%PDF-1.4")},
			`Unsupported file type "application/pdf".  Allowed types: image/jpeg, image/png, image/gif.`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestForm(t, nil)
			<-f.SelectImage(tc.file)

			snap := f.Snapshot()
			assert.Equal(t, tc.want, snap.ImageError)
			assert.Nil(t, snap.Fields[FieldProfileImage])
			assert.Empty(t, snap.ImagePreview)
		})
	}
}

func TestSelectImage_RejectionKeepsStagedImage(t *testing.T) {
	f := newTestForm(t, nil)
	<-f.SelectImage(&File{Name: "ok.png", Type: "image/png", Data: pngBytes(t, 8, 8)})
	before := f.Snapshot()
	require.NotEmpty(t, before.ImagePreview)

	<-f.SelectImage(&File{Name: "cv.pdf", Type: "application/pdf", Size: 10})

	after := f.Snapshot()
	assert.NotEmpty(t, after.ImageError)
	assert.Equal(t, before.ImagePreview, after.ImagePreview)
	assert.Same(t, before.Fields[FieldProfileImage], after.Fields[FieldProfileImage])
}

func TestSelectImage_StagesAndPreviews(t *testing.T) {
	f := newTestForm(t, nil)
	data := pngBytes(t, 16, 16)

	<-f.SelectImage(&File{Name: "me.png", Data: data})

	snap := f.Snapshot()
	staged, ok := snap.Fields[FieldProfileImage].(*File)
	require.True(t, ok)
	assert.Equal(t, "image/png", staged.Type, "type is sniffed when undeclared")
	assert.Equal(t, int64(len(data)), staged.Size)
	assert.Empty(t, snap.ImageError)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data), snap.ImagePreview)
}

func TestSelectImage_ScalesLargePreview(t *testing.T) {
	f := newTestForm(t, nil)
	<-f.SelectImage(&File{Name: "wide.png", Type: "image/png", Data: pngBytes(t, 600, 300)})

	preview := f.Snapshot().ImagePreview
	require.True(t, strings.HasPrefix(preview, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(preview, "data:image/png;base64,"))
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 128, cfg.Height)
}

func TestSelectImage_PreviewFailure(t *testing.T) {
	f := newTestForm(t, nil)
	<-f.SelectImage(&File{Name: "broken.png", Type: "image/png", Data: []byte("not really a png")})

	snap := f.Snapshot()
	assert.Equal(t, MsgPreviewFailed, snap.ImageError)
	assert.Empty(t, snap.ImagePreview)
	assert.NotNil(t, snap.Fields[FieldProfileImage], "file stays staged")
}

func TestSelectImage_RefusesOversizedDimensions(t *testing.T) {
	f := newTestForm(t, nil)
	// A header claiming 10000×10000 pixels; decoding it would need ~400 MB.
	data := pngHeader(t, 10_000, 10_000)
	require.Less(t, len(data), 100)

	<-f.SelectImage(&File{Name: "bomb.png", Type: "image/png", Data: data})

	snap := f.Snapshot()
	assert.Equal(t, MsgPreviewFailed, snap.ImageError)
	assert.Empty(t, snap.ImagePreview)
	staged, ok := snap.Fields[FieldProfileImage].(*File)
	require.True(t, ok, "file stays staged")
	assert.Equal(t, "bomb.png", staged.Name)
}

func TestPreviewDataURL_PixelLimit(t *testing.T) {
	_, err := previewDataURL(&File{Name: "bomb.png", Data: pngHeader(t, 5001, 5000)})
	assert.ErrorContains(t, err, "5001x5000 exceeds the preview pixel limit")

	// At the limit the header passes; the truncated body then fails to decode.
	_, err = previewDataURL(&File{Name: "edge.png", Data: pngHeader(t, 5000, 5000)})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "pixel limit")
}

func TestRemoveImage(t *testing.T) {
	f := newTestForm(t, nil)
	require.NoError(t, f.UpdateField(FieldImageAlt, "Headshot"))
	<-f.SelectImage(&File{Name: "me.png", Type: "image/png", Data: pngBytes(t, 4, 4)})

	require.NoError(t, f.RemoveImage())

	snap := f.Snapshot()
	assert.Nil(t, snap.Fields[FieldProfileImage])
	assert.Equal(t, "", snap.Fields[FieldImageAlt])
	assert.Empty(t, snap.ImagePreview)
	assert.Empty(t, snap.ImageError)

	// The same file can be selected again.
	<-f.SelectImage(&File{Name: "me.png", Type: "image/png", Data: pngBytes(t, 4, 4)})
	assert.NotEmpty(t, f.Snapshot().ImagePreview)
}

func TestRemoveImage_DropsPendingPreview(t *testing.T) {
	f := newTestForm(t, nil)

	done := f.SelectImage(&File{Name: "big.png", Type: "image/png", Data: pngBytes(t, 1024, 1024)})
	require.NoError(t, f.RemoveImage())
	<-done

	snap := f.Snapshot()
	assert.Empty(t, snap.ImagePreview)
	assert.Nil(t, snap.Fields[FieldProfileImage])
}

func TestSelectImage_AfterClose(t *testing.T) {
	f := newTestForm(t, nil)
	f.Close()

	<-f.SelectImage(&File{Name: "me.png", Type: "image/png", Data: pngBytes(t, 4, 4)})
	assert.Nil(t, f.Snapshot().Fields[FieldProfileImage])
	assert.ErrorIs(t, f.RemoveImage(), ErrClosed)
}
