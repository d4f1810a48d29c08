// internal/form/upload.go
//
// Adept Users – Forms subsystem: file uploads and image previews.
//
// Context
//   A File is a transient, in-memory copy of one user-selected file.  It is
//   never written to disk by this service; the submission pipeline forwards
//   it to the remote API as a multipart part and then drops it.
//
// Workflow
//   •  ValidateFileUpload enforces a size ceiling and a MIME allow-list.  Size
//      is checked first and at most one message is returned.
//   •  detectType sniffs the content type when the client did not declare one.
//   •  previewDataURL decodes the image, downsizes large images to a
//      thumbnail, and returns a data URL for the preview slot.  JPEG, PNG,
//      GIF, and WebP decoders are registered.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // register decoders for image.Decode
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // previews for operators who allow image/webp
)

// Image upload defaults.
const (
	MaxImageBytes    int64 = 5 << 20 // 5 MiB
	previewMaxEdge         = 256
	maxPreviewPixels       = 25_000_000 // decoded RGBA costs 4 bytes per pixel
	MsgPreviewFailed       = "Could not preview image."
)

// AllowedImageTypes is the default MIME allow-list for profile images.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif"}

// UploadLimits bounds image selection for one form.
type UploadLimits struct {
	MaxBytes     int64    `koanf:"max_image_bytes" validate:"gt=0"`
	AllowedTypes []string `koanf:"allowed_types"   validate:"min=1"`
}

// DefaultUploadLimits mirrors MaxImageBytes and AllowedImageTypes.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		MaxBytes:     MaxImageBytes,
		AllowedTypes: append([]string(nil), AllowedImageTypes...),
	}
}

// File is one user-selected file held in memory.
type File struct {
	Name string `json:"name"`
	Type string `json:"type"` // declared or sniffed MIME type
	Size int64  `json:"size"`
	Data []byte `json:"-"`
}

// ValidateFileUpload returns a user-facing message when f is larger than
// maxSizeBytes or its type is not in allowed.  An empty string means valid.
func ValidateFileUpload(f *File, maxSizeBytes int64, allowed []string) string {
	if f == nil {
		return ""
	}
	if maxSizeBytes > 0 && f.Size > maxSizeBytes {
		return fmt.Sprintf("File is too large.  Maximum size is %s.", humanBytes(maxSizeBytes))
	}
	if !lo.Contains(allowed, normalizeType(f.Type)) {
		return fmt.Sprintf("Unsupported file type %q.  Allowed types: %s.", f.Type, strings.Join(allowed, ", "))
	}
	return ""
}

// detectType returns the declared type, or the sniffed one when undeclared.
func detectType(f *File) string {
	if t := normalizeType(f.Type); t != "" && t != "application/octet-stream" {
		return t
	}
	return normalizeType(mimetype.Detect(f.Data).String())
}

// normalizeType drops parameters ("; charset=…") and lowercases.
func normalizeType(t string) string {
	if i := strings.IndexByte(t, ';'); i != -1 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// previewDataURL decodes f and returns a data URL.  Images whose longest
// edge exceeds previewMaxEdge are scaled down and re-encoded as PNG; smaller
// images keep their original bytes.  The header is read first, and images
// above maxPreviewPixels are refused without decoding the pixel data.
func previewDataURL(f *File) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", f.Name, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPreviewPixels {
		return "", fmt.Errorf("decode %s: %dx%d exceeds the preview pixel limit", f.Name, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", f.Name, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= previewMaxEdge && h <= previewMaxEdge {
		return dataURL(f.Type, f.Data), nil
	}

	if w >= h {
		h = max(1, h*previewMaxEdge/w)
		w = previewMaxEdge
	} else {
		w = max(1, w*previewMaxEdge/h)
		h = previewMaxEdge
	}
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return "", fmt.Errorf("encode preview %s: %w", f.Name, err)
	}
	return dataURL("image/png", buf.Bytes()), nil
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
