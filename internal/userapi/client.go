// internal/userapi/client.go
//
// Adept Users – HTTP client for the user-creation endpoint.
//
// Context
//   The back-office does not persist users itself.  Each accepted form is
//   posted to the users service as multipart/form-data:
//
//     POST {base}/users/{role}
//     Authorization: Bearer <token>
//
//     payload       JSON-encoded role payload
//     role          role name
//     profileImage  optional file part
//     imageAlt      optional text
//
//   A 2xx answer is a success.  Any other status is a business rejection
//   whose message is extracted from the body (see message.go).  Transport
//   failures are returned as errors; the form pipeline turns them into
//   general errors.
//
// Notes
//   •  Client implements form.Creator.
//   •  The per-request timeout lives on the embedded http.Client.
//
//------------------------------------------------------------------------------

package userapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/logger"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrTimeout is returned when the users service exceeds the client timeout.
var ErrTimeout = errors.New("users service did not respond in time")

// Client posts creation requests to the users service.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New returns a Client for baseURL.  timeout <= 0 means 15 s.
func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("userapi: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("userapi: base url must be http or https")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

// WithHTTPClient replaces the underlying client.  Used by tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// CreateUser implements form.Creator.
func (c *Client) CreateUser(ctx context.Context, req form.CreateRequest) (form.CreateResponse, error) {
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return form.CreateResponse{}, err
	}

	endpoint := c.base.JoinPath("users", url.PathEscape(req.Role))
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return form.CreateResponse{}, err
	}
	hreq.Header.Set("Content-Type", contentType)
	hreq.Header.Set("Accept", "application/json")
	if c.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		return form.CreateResponse{}, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return form.CreateResponse{}, fmt.Errorf("read response: %w", err)
	}

	logger.FromContext(ctx).Debugw("users service replied",
		"role", req.Role, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode/100 == 2 {
		return decodeSuccess(raw), nil
	}
	return decodeFailure(raw, resp.Header.Get("Content-Type")), nil
}

// encodeMultipart builds the request body.
func encodeMultipart(req form.CreateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}
	if err := mw.WriteField("payload", string(payload)); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("role", req.Role); err != nil {
		return nil, "", err
	}

	if f := req.Image; f != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, form.FieldProfileImage, sanitiseName(f.Name)))
		h.Set("Content-Type", f.Type)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
		if req.ImageAlt != "" {
			if err := mw.WriteField(form.FieldImageAlt, req.ImageAlt); err != nil {
				return nil, "", err
			}
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func sanitiseName(name string) string {
	name = strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(name)
	if name == "" {
		return "upload"
	}
	return name
}

// transportError rewrites timeouts into a readable message.  The message
// reaches the submitter verbatim.
func transportError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return ErrTimeout
		}
		return fmt.Errorf("users service unreachable: %w", ue.Err)
	}
	return err
}
