package users

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/logger"
	"github.com/yanizio/adept-users/internal/role"
	"github.com/yanizio/adept-users/internal/session"
)

// maxValueBody caps PUT /fields bodies.
const maxValueBody = 64 << 10

// errBadRequest marks client payload problems.
var errBadRequest = errors.New("bad request")

/*──────────────────────────── views ───────────────────────────────────────*/

type fieldView struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Kind      string   `json:"kind"`
	Required  bool     `json:"required"`
	Options   []string `json:"options,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength int      `json:"minLength,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

type roleView struct {
	Role   string      `json:"role"`
	Title  string      `json:"title"`
	Fields []fieldView `json:"fields"`
}

type formView struct {
	ID    string        `json:"id"`
	Title string        `json:"title,omitempty"`
	State form.Snapshot `json:"state"`
}

type submitView struct {
	Result form.SubmissionResult `json:"result"`
	State  form.Snapshot         `json:"state"`
}

func viewFields(ds []form.FieldDescriptor) []fieldView {
	out := make([]fieldView, 0, len(ds))
	for _, d := range ds {
		fv := fieldView{Key: d.Key, Label: d.Label, Kind: string(d.Kind), Required: d.Required}
		if r := d.Rule; r != nil {
			fv.Options, fv.Min, fv.Max = r.Options, r.Min, r.Max
			fv.MinLength, fv.MaxLength, fv.Pattern = r.MinLength, r.MaxLength, r.Pattern
		}
		out = append(out, fv)
	}
	return out
}

func viewRole(v *role.Variant) roleView {
	return roleView{Role: v.Role.String(), Title: v.Title, Fields: viewFields(v.Fields.All())}
}

/*──────────────────────────── form lookup ─────────────────────────────────*/

type ctxKey struct{}

type openForm struct {
	id string
	f  *form.Form
}

// loadForm resolves {id} through the session store.
func (c *Comp) loadForm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		f, err := c.deps.Store.Get(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, openForm{id: id, f: f})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func current(r *http.Request) openForm {
	return r.Context().Value(ctxKey{}).(openForm)
}

/*──────────────────────────── handlers ────────────────────────────────────*/

func (c *Comp) listRoles(w http.ResponseWriter, _ *http.Request) {
	roles := c.deps.Catalogue.Roles()
	out := make([]roleView, 0, len(roles))
	for _, r := range roles {
		v, _ := c.deps.Catalogue.Variant(r)
		out = append(out, viewRole(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *Comp) openForm(w http.ResponseWriter, r *http.Request) {
	rl, err := role.Parse(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := c.deps.Catalogue.Variant(rl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, f, err := c.deps.Store.Open(r.Context(), r.Header.Get(IdempotencyHeader), c.buildForm(v))
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Infow("form opened", "role", rl)

	writeJSON(w, http.StatusCreated, struct {
		formView
		Fields []fieldView `json:"fields"`
	}{
		formView: formView{ID: id, Title: v.Title, State: f.Snapshot()},
		Fields:   viewFields(f.Fields()),
	})
}

func (c *Comp) getForm(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	writeJSON(w, http.StatusOK, formView{ID: cur.id, State: cur.f.Snapshot()})
}

func (c *Comp) closeForm(w http.ResponseWriter, r *http.Request) {
	c.deps.Store.Delete(current(r).id)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Comp) updateField(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	key := chi.URLParam(r, "key")

	d, ok := lookupField(cur.f, key)
	if !ok {
		writeError(w, r, form.ErrUnknownField)
		return
	}

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxValueBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}
	val, err := form.DecodeValue(d, body.Value)
	if err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}
	if err := cur.f.UpdateField(key, val); err != nil {
		writeError(w, r, err)
		return
	}
	c.respondState(w, cur)
}

func (c *Comp) toggle(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	switch chi.URLParam(r, "flag") {
	case "password":
		cur.f.TogglePasswordVisibility()
	case "confirmPassword":
		cur.f.ToggleConfirmPasswordVisibility()
	case "dropdown":
		cur.f.ToggleDropdown()
	default:
		writeError(w, r, errors.Join(errBadRequest, errors.New("unknown flag")))
		return
	}
	c.respondState(w, cur)
}

func (c *Comp) toggleItem(w http.ResponseWriter, r *http.Request) {
	c.editItems(w, r, func(f *form.Form, key, item string) error { return f.ToggleItem(key, item) })
}

func (c *Comp) removeItem(w http.ResponseWriter, r *http.Request) {
	c.editItems(w, r, func(f *form.Form, key, item string) error { return f.RemoveItem(key, item) })
}

func (c *Comp) clearItems(w http.ResponseWriter, r *http.Request) {
	c.editItems(w, r, func(f *form.Form, key, _ string) error { return f.ClearAll(key) })
}

func (c *Comp) editItems(w http.ResponseWriter, r *http.Request, edit func(*form.Form, string, string) error) {
	cur := current(r)
	if err := edit(cur.f, chi.URLParam(r, "key"), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, r, err)
		return
	}
	c.respondState(w, cur)
}

func (c *Comp) selectImage(w http.ResponseWriter, r *http.Request) {
	cur := current(r)

	file, err := c.readUpload(w, r)
	if err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}

	select {
	case <-cur.f.SelectImage(file):
	case <-r.Context().Done():
		return
	}
	c.respondState(w, cur)
}

func (c *Comp) removeImage(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	if err := cur.f.RemoveImage(); err != nil {
		writeError(w, r, err)
		return
	}
	c.respondState(w, cur)
}

func (c *Comp) reset(w http.ResponseWriter, r *http.Request) {
	cur := current(r)
	if err := cur.f.Reset(); err != nil {
		writeError(w, r, err)
		return
	}
	c.respondState(w, cur)
}

// submit runs the pipeline.  A successful form is discarded; a failed one
// stays open so the operator can correct it.
func (c *Comp) submit(w http.ResponseWriter, r *http.Request) {
	cur := current(r)

	res := cur.f.Submit(r.Context())
	snap := cur.f.Snapshot()

	status := http.StatusOK
	if res.Success {
		c.deps.Store.Delete(cur.id)
	} else {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, submitView{Result: res, State: snap})
}

func (c *Comp) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var rl string
	if s := q.Get("role"); s != "" {
		parsed, err := role.Parse(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rl = parsed.String()
	}
	limit := 50
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, r, errors.Join(errBadRequest, err))
			return
		}
		limit = n
	}

	recs, err := c.deps.Audit.Recent(r.Context(), rl, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func (c *Comp) respondState(w http.ResponseWriter, cur openForm) {
	writeJSON(w, http.StatusOK, formView{ID: cur.id, State: cur.f.Snapshot()})
}

func lookupField(f *form.Form, key string) (form.FieldDescriptor, bool) {
	for _, d := range f.Fields() {
		if d.Key == key {
			return d, true
		}
	}
	return form.FieldDescriptor{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps sentinel errors to status codes.  Unexpected errors are
// logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, role.ErrUnknownRole):
		status = http.StatusNotFound
	case errors.Is(err, form.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, errBadRequest),
		errors.Is(err, form.ErrInvalidItem),
		errors.Is(err, form.ErrNotMultiSelect),
		errors.Is(err, form.ErrFileValue):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Errorw("request failed", "path", r.URL.Path, "err", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// drain discards the rest of a reader, returning how many bytes it held.
func drain(rd io.Reader) (int64, error) {
	return io.Copy(io.Discard, rd)
}
