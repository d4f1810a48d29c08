// components/users/users_test.go
//
// End-to-end tests for the forms JSON API.
//
// Context
// -------
// The component is mounted on a real chi router behind httptest.Server, so
// routing, handle verification, multipart parsing, and status mapping are
// all exercised.  The users service is a stub Creator; the audit table is
// go-sqlmock.

package users

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/adept-users/internal/audit"
	"github.com/yanizio/adept-users/internal/component"
	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/role"
	"github.com/yanizio/adept-users/internal/session"
)

// stubCreator records requests and answers with the stored reply, or a
// bare success when none is set.
type stubCreator struct {
	calls atomic.Int32
	last  atomic.Pointer[form.CreateRequest]
	reply atomic.Pointer[form.CreateResponse]
}

func (s *stubCreator) CreateUser(_ context.Context, req form.CreateRequest) (form.CreateResponse, error) {
	s.calls.Add(1)
	s.last.Store(&req)
	if r := s.reply.Load(); r != nil {
		return *r, nil
	}
	return form.CreateResponse{Success: true}, nil
}

type apiClient struct {
	t    *testing.T
	base string
}

func newAPI(t *testing.T, creator form.Creator, auditStore *audit.Store) (*apiClient, *session.Store) {
	t.Helper()

	cat, err := role.Load("", nil, nil)
	require.NoError(t, err)
	store, err := session.New(session.Options{})
	require.NoError(t, err)
	t.Cleanup(store.CloseAll)

	comp := New(Deps{
		Catalogue: cat,
		Store:     store,
		Creator:   creator,
		Upload:    form.UploadLimits{MaxBytes: 1024, AllowedTypes: []string{"image/png", "image/jpeg"}},
		Audit:     auditStore,
		Logger:    zap.NewNop().Sugar(),
	})
	r := chi.NewRouter()
	comp.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, base: srv.URL}, store
}

// do sends a request and decodes a JSON response into out (when non-nil).
func (a *apiClient) do(method, path string, body io.Reader, contentType string, hdr http.Header, out any) int {
	a.t.Helper()
	req, err := http.NewRequest(method, a.base+path, body)
	require.NoError(a.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *apiClient) setField(id, key string, value any, out any) int {
	a.t.Helper()
	b, err := json.Marshal(map[string]any{"value": value})
	require.NoError(a.t, err)
	return a.do(http.MethodPut, "/api/forms/"+id+"/fields/"+key, bytes.NewReader(b), "application/json", nil, out)
}

func (a *apiClient) upload(id, name string, data []byte, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(a.t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(uploadField, name)
	require.NoError(a.t, err)
	_, err = fw.Write(data)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())
	return a.do(http.MethodPost, "/api/forms/"+id+"/image", &buf, mw.FormDataContentType(), nil, out)
}

type openResp struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	State  form.Snapshot `json:"state"`
	Fields []fieldView   `json:"fields"`
}

type stateResp struct {
	ID    string        `json:"id"`
	State form.Snapshot `json:"state"`
}

type errResp struct {
	Error string `json:"error"`
}

func (a *apiClient) open(roleName string) openResp {
	a.t.Helper()
	var o openResp
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, "/api/roles/"+roleName+"/forms", nil, "", nil, &o))
	require.NotEmpty(a.t, o.ID)
	return o
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestListRoles(t *testing.T) {
	api, _ := newAPI(t, &stubCreator{}, nil)

	var roles []roleView
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/roles", nil, "", nil, &roles))
	require.Len(t, roles, 5)

	byRole := map[string]roleView{}
	for _, r := range roles {
		byRole[r.Role] = r
	}
	sales := byRole["sales"]
	assert.Equal(t, "Sales representative", sales.Title)

	var keys []string
	for _, f := range sales.Fields {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "governorates")
	assert.NotContains(t, keys, "shift")

	for _, f := range byRole["maintenance"].Fields {
		if f.Key == "specialization" {
			assert.Equal(t, "select", f.Kind)
			assert.Contains(t, f.Options, "hvac")
		}
	}
}

func TestOpenForm(t *testing.T) {
	api, store := newAPI(t, &stubCreator{}, nil)

	o := api.open("maintenance")
	assert.Equal(t, "Maintenance technician", o.Title)
	assert.Equal(t, "maintenance", o.State.Role)
	assert.Equal(t, "general", o.State.Fields["specialization"])
	assert.NotEmpty(t, o.Fields)

	var e errResp
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/api/roles/ceo/forms", nil, "", nil, &e))
	assert.Contains(t, e.Error, "unknown role")

	t.Run("idempotency key", func(t *testing.T) {
		hdr := http.Header{IdempotencyHeader: {"retry-42"}}
		var a, b openResp
		require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/roles/sales/forms", nil, "", hdr, &a))
		require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/roles/sales/forms", nil, "", hdr, &b))
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, 2, store.Len())
	})
}

func TestFormLookupErrors(t *testing.T) {
	api, store := newAPI(t, &stubCreator{}, nil)

	var e errResp
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/forms/forged-handle", nil, "", nil, &e))
	assert.Contains(t, e.Error, "not found")

	o := api.open("sales")
	assert.Equal(t, http.StatusNotFound, api.setField(o.ID, "salary", 1, &e))
	assert.Equal(t, http.StatusBadRequest, api.setField(o.ID, "email", 42, &e))
	assert.Equal(t, http.StatusBadRequest,
		api.do(http.MethodPut, "/api/forms/"+o.ID+"/fields/email", bytes.NewBufferString("{"), "application/json", nil, &e))
	assert.Equal(t, http.StatusBadRequest, api.setField(o.ID, form.FieldProfileImage, "x.png", &e))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/forms/"+o.ID+"/toggle/sidebar", nil, "", nil, &e))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/forms/"+o.ID+"/items/email/1", nil, "", nil, &e))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/forms/"+o.ID+"/items/governorates/zero", nil, "", nil, &e))

	// Close it through the API; the handle is then unknown.
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/forms/"+o.ID, nil, "", nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/forms/"+o.ID, nil, "", nil, &e))
	assert.Equal(t, 0, store.Len())
}

func TestWriteError_Gone(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), form.ErrClosed)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestEditing(t *testing.T) {
	api, _ := newAPI(t, &stubCreator{}, nil)
	o := api.open("sales")
	path := "/api/forms/" + o.ID

	var s stateResp
	var sv submitView
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, path+"/submit", nil, "", nil, &sv))
	require.NotEmpty(t, sv.State.FieldErrors["email"])

	// An edit clears that field's errors and every general error.
	require.Equal(t, http.StatusOK, api.setField(o.ID, "email", "bad", &s))
	assert.Equal(t, "bad", s.State.Fields["email"])
	assert.Empty(t, s.State.FieldErrors["email"])
	assert.NotEmpty(t, s.State.FieldErrors["name"])
	assert.Empty(t, s.State.GeneralErrors)

	require.Equal(t, http.StatusOK, api.setField(o.ID, form.FieldPassword, "abc", &s))
	assert.NotEmpty(t, s.State.PasswordErrors)

	require.Equal(t, http.StatusOK, api.setField(o.ID, "monthlyTarget", 2500, &s))
	assert.Equal(t, 2500.0, s.State.Fields["monthlyTarget"])

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/toggle/password", nil, "", nil, &s))
	assert.True(t, s.State.ShowPassword)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/toggle/dropdown", nil, "", nil, &s))
	assert.True(t, s.State.DropdownOpen)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/toggle/confirmPassword", nil, "", nil, &s))
	assert.True(t, s.State.ShowConfirmPassword)

	t.Run("selection", func(t *testing.T) {
		for _, id := range []string{"3", "1", "3", "7"} {
			require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/items/governorates/"+id, nil, "", nil, &s))
		}
		assert.Equal(t, []any{1.0, 7.0}, s.State.Fields["governorates"])

		require.Equal(t, http.StatusOK, api.do(http.MethodDelete, path+"/items/governorates/1", nil, "", nil, &s))
		assert.Equal(t, []any{7.0}, s.State.Fields["governorates"])

		require.Equal(t, http.StatusOK, api.do(http.MethodDelete, path+"/items/governorates", nil, "", nil, &s))
		assert.Equal(t, []any{}, s.State.Fields["governorates"])

		require.Equal(t, http.StatusOK, api.setField(o.ID, "governorates", []int{2, 5}, &s))
		assert.Equal(t, []any{2.0, 5.0}, s.State.Fields["governorates"])
	})

	t.Run("reset", func(t *testing.T) {
		require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/reset", nil, "", nil, &s))
		assert.Equal(t, "", s.State.Fields["email"])
		assert.Empty(t, s.State.FieldErrors)
		assert.Empty(t, s.State.PasswordErrors)
		assert.Equal(t, []any{}, s.State.Fields["governorates"])

		var g stateResp
		require.Equal(t, http.StatusOK, api.do(http.MethodGet, path, nil, "", nil, &g))
		assert.Equal(t, s.State, g.State)
	})
}

func TestImageUpload(t *testing.T) {
	api, _ := newAPI(t, &stubCreator{}, nil)
	o := api.open("support")
	path := "/api/forms/" + o.ID

	var s stateResp
	require.Equal(t, http.StatusOK, api.upload(o.ID, "me.png", tinyPNG(t), &s))
	assert.Empty(t, s.State.ImageError)
	assert.Contains(t, s.State.ImagePreview, "data:image/png;base64,")
	staged, ok := s.State.Fields[form.FieldProfileImage].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "me.png", staged["name"])
	assert.Equal(t, "image/png", staged["type"])

	t.Run("oversize is a form error, not a request error", func(t *testing.T) {
		big := bytes.Repeat([]byte{0x89}, 3000)
		require.Equal(t, http.StatusOK, api.upload(o.ID, "huge.png", big, &s))
		assert.Contains(t, s.State.ImageError, "File is too large")
		// The earlier image stays staged.
		assert.Equal(t, "me.png", s.State.Fields[form.FieldProfileImage].(map[string]any)["name"])
	})

	t.Run("wrong type", func(t *testing.T) {
		require.Equal(t, http.StatusOK, api.upload(o.ID, "notes.txt", []byte("just text"), &s))
		assert.Contains(t, s.State.ImageError, "Unsupported file type")
	})

	t.Run("missing part", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "no file here"))
		require.NoError(t, mw.Close())
		var e errResp
		assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, path+"/image", &buf, mw.FormDataContentType(), nil, &e))
		assert.Contains(t, e.Error, `"file" is missing`)

		assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, path+"/image", bytes.NewBufferString("x"), "text/plain", nil, &e))
	})

	t.Run("remove", func(t *testing.T) {
		require.Equal(t, http.StatusOK, api.setField(o.ID, form.FieldImageAlt, "Headshot", &s))
		require.Equal(t, http.StatusOK, api.do(http.MethodDelete, path+"/image", nil, "", nil, &s))
		assert.Nil(t, s.State.Fields[form.FieldProfileImage])
		assert.Equal(t, "", s.State.Fields[form.FieldImageAlt])
		assert.Empty(t, s.State.ImagePreview)
		assert.Empty(t, s.State.ImageError)
	})
}

func TestSubmit(t *testing.T) {
	creator := &stubCreator{}
	creator.reply.Store(&form.CreateResponse{
		Error:       "Email already exists",
		FieldErrors: map[string][]string{"email": {"Taken"}},
	})
	api, store := newAPI(t, creator, nil)
	o := api.open("sales")
	path := "/api/forms/" + o.ID

	var sv submitView
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, path+"/submit", nil, "", nil, &sv))
	assert.False(t, sv.Result.Success)
	assert.Contains(t, sv.Result.Error, "Full name: "+form.MsgRequired)
	assert.NotEmpty(t, sv.State.FieldErrors["governorates"])
	assert.Equal(t, int32(0), creator.calls.Load())

	var s stateResp
	for key, val := range map[string]any{
		"name":                    "Mona Hassan",
		"email":                   "mona@example.com",
		form.FieldPassword:        "Abc12345",
		form.FieldConfirmPassword: "Abc12345",
		"governorates":            []int{1, 4},
	} {
		require.Equal(t, http.StatusOK, api.setField(o.ID, key, val, &s), key)
	}

	t.Run("remote rejection keeps the form", func(t *testing.T) {
		require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, path+"/submit", nil, "", nil, &sv))
		assert.Equal(t, "Email already exists", sv.Result.Error)
		assert.Equal(t, []string{"Email already exists"}, sv.State.GeneralErrors)
		assert.Equal(t, []string{"Taken"}, sv.State.FieldErrors["email"])
		assert.False(t, sv.State.IsSubmitting)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("success discards the form", func(t *testing.T) {
		creator.reply.Store(&form.CreateResponse{Success: true, User: map[string]any{"id": "u-9"}, Message: "User created"})
		require.Equal(t, http.StatusOK, api.setField(o.ID, "email", "mona.h@example.com", &s))

		require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/submit", nil, "", nil, &sv))
		assert.True(t, sv.Result.Success)
		assert.Equal(t, "User created", sv.Result.Message)
		assert.Equal(t, map[string]any{"id": "u-9"}, sv.Result.User)

		req := creator.last.Load()
		require.NotNil(t, req)
		assert.Equal(t, "sales", req.Role)
		p, ok := req.Payload.(role.SalesPayload)
		require.True(t, ok, "payload is %T", req.Payload)
		assert.Equal(t, "mona.h@example.com", p.Email)
		assert.Equal(t, []int64{1, 4}, p.Governorates)

		var e errResp
		assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, nil, "", nil, &e))
		assert.Equal(t, 0, store.Len())
	})
}

func TestAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	dbx := sqlx.NewDb(db, "mysql")

	cat, err := role.Load("", nil, nil)
	require.NoError(t, err)
	store, err := session.New(session.Options{})
	require.NoError(t, err)
	t.Cleanup(store.CloseAll)

	comp := New(Deps{Catalogue: cat, Store: store, Creator: &stubCreator{}, Audit: audit.NewStore(dbx)})

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS user_creation_audit")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := chi.NewRouter()
	require.NoError(t, component.Mount(context.Background(), r, dbx, zap.NewNop().Sugar(), comp))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	api := &apiClient{t: t, base: srv.URL}

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE\s+role = \?`).
		WithArgs("sales", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "email", "remote_user_id", "browser", "device", "country", "created_at"}).
			AddRow(3, "sales", "a@b.co", "u-3", "Chrome", "Desktop", "EG", at))

	var recs []map[string]any
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/audit?role=Sales&limit=5", nil, "", nil, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "a@b.co", recs[0]["email"])
	assert.NotContains(t, recs[0], "remote_user_id")

	var e errResp
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/audit?role=ceo", nil, "", nil, &e))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/audit?limit=lots", nil, "", nil, &e))

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{audit.Schema}, comp.Migrations())
}

func TestNoAuditRoute(t *testing.T) {
	api, _ := newAPI(t, &stubCreator{}, nil)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/audit", nil, "", nil, nil))
	assert.Nil(t, New(Deps{}).Migrations())
}
