package users

import (
	"errors"
	"io"
	"net/http"

	"github.com/yanizio/adept-users/internal/form"
)

// uploadField is the multipart part name of the image.
const uploadField = "file"

// errNoFile is returned when the request has no "file" part.
var errNoFile = errors.New("multipart part \"file\" is missing")

// readUpload streams the "file" part into memory.  Files above the upload
// limit are counted but not kept, so SelectImage can report the size
// violation in the image error slot instead of failing the request.
func (c *Comp) readUpload(w http.ResponseWriter, r *http.Request) (*form.File, error) {
	limit := c.deps.Upload.MaxBytes
	hardCap := max(4*limit, 1<<20)
	r.Body = http.MaxBytesReader(w, r.Body, hardCap)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		defer part.Close()

		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		if err != nil {
			return nil, err
		}
		f := &form.File{
			Name: part.FileName(),
			Type: part.Header.Get("Content-Type"),
			Size: int64(len(data)),
			Data: data,
		}
		if f.Size <= limit {
			return f, nil
		}

		rest, err := drain(part)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			rest = hardCap
		} else if err != nil {
			return nil, err
		}
		f.Size += rest
		f.Data = nil
		return f, nil
	}
}
