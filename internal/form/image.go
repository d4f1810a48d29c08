// internal/form/image.go
//
// Adept Users – Forms subsystem: profile image attachment.
//
// Context
//   The image slot is an optional sub-interaction with its own error field.
//   Selection validates the file against the form's upload limits, stages it
//   as the profileImage value, and decodes a preview in the background.  The
//   preview goroutine re-checks a generation counter before writing, so a
//   preview finishing after RemoveImage, Reset, Close, or a newer selection
//   is dropped on the floor.
//
//------------------------------------------------------------------------------

package form

import "github.com/yanizio/adept-users/internal/metrics"

// SelectImage validates and stages file.  The returned channel is closed once
// the selection has fully settled, including the asynchronous preview.  A nil
// file is a no-op.
func (f *Form) SelectImage(file *File) <-chan struct{} {
	done := make(chan struct{})
	if file == nil {
		close(done)
		return done
	}

	staged := *file
	if staged.Size == 0 {
		staged.Size = int64(len(staged.Data))
	}
	staged.Type = detectType(&staged)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(done)
		return done
	}
	if !f.set.Has(FieldProfileImage) {
		f.mu.Unlock()
		f.log.Warnw("image selected on a form without an image field", "file", staged.Name)
		close(done)
		return done
	}
	if msg := ValidateFileUpload(&staged, f.upload.MaxBytes, f.upload.AllowedTypes); msg != "" {
		f.st.imageError = msg
		f.mu.Unlock()
		metrics.ImageRejectionsTotal.WithLabelValues(f.role).Inc()
		f.log.Infow("image rejected", "file", staged.Name, "size", staged.Size, "type", staged.Type)
		close(done)
		return done
	}

	f.st.imageError = ""
	f.st.imagePreview = ""
	f.st.fields[FieldProfileImage] = &staged
	delete(f.st.fieldErrors, FieldProfileImage)
	f.imageGen++
	gen := f.imageGen
	f.mu.Unlock()

	go func() {
		defer close(done)

		preview, err := previewDataURL(&staged)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed || gen != f.imageGen {
			return
		}
		if err != nil {
			f.st.imageError = MsgPreviewFailed
			f.log.Warnw("image preview failed", "file", staged.Name, "error", err)
			return
		}
		f.st.imagePreview = preview
	}()
	return done
}

// RemoveImage unstages the image and its alt text and clears the preview and
// image error.  Bumping the generation lets the same file be selected again
// and discards any preview still decoding.
func (f *Form) RemoveImage() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.set.Has(FieldProfileImage) {
		f.st.fields[FieldProfileImage] = nil
	}
	if f.set.Has(FieldImageAlt) {
		f.st.fields[FieldImageAlt] = ""
	}
	f.st.imagePreview = ""
	f.st.imageError = ""
	f.imageGen++
	return nil
}
