// components/users/users.go
//
// Users Component – JSON API over the creation-form engine.
//
// Context
//   The back-office UI never holds form logic of its own.  It opens a form
//   for a role, streams every edit to the server, renders the returned
//   snapshot, and finally asks the server to submit.  Forms live in the
//   session store between requests; a successful submission discards them.
//
// Routes (all JSON)
//   GET    /api/roles                              role catalogue
//   POST   /api/roles/{role}/forms                 open → 201 {id, …}
//   GET    /api/forms/{id}                         snapshot
//   DELETE /api/forms/{id}                         close
//   PUT    /api/forms/{id}/fields/{key}            set one value
//   POST   /api/forms/{id}/toggle/{flag}           password | confirmPassword | dropdown
//   POST   /api/forms/{id}/items/{key}/{itemID}    toggle selection item
//   DELETE /api/forms/{id}/items/{key}/{itemID}    remove selection item
//   DELETE /api/forms/{id}/items/{key}             clear selection
//   POST   /api/forms/{id}/image                   multipart "file"
//   DELETE /api/forms/{id}/image                   unstage image
//   POST   /api/forms/{id}/reset                   restore defaults
//   POST   /api/forms/{id}/submit                  run the pipeline
//   GET    /api/audit                              recent creations (when enabled)
//
//------------------------------------------------------------------------------

package users

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/adept-users/internal/audit"
	"github.com/yanizio/adept-users/internal/component"
	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/role"
	"github.com/yanizio/adept-users/internal/session"
)

// compile-time assertion
var _ component.Component = (*Comp)(nil)

// IdempotencyHeader lets clients retry an open without leaking forms.
const IdempotencyHeader = "Idempotency-Key"

// Deps are the collaborators the component needs.  Audit may be nil.
type Deps struct {
	Catalogue *role.Catalogue
	Store     *session.Store
	Creator   form.Creator
	Validator *form.Validator
	Upload    form.UploadLimits
	Audit     *audit.Store
	Logger    *zap.SugaredLogger
}

// Comp implements component.Component.
type Comp struct {
	deps Deps
}

// New returns the component.
func New(d Deps) *Comp {
	if d.Logger == nil {
		d.Logger = zap.S()
	}
	if d.Upload.MaxBytes == 0 {
		d.Upload = form.DefaultUploadLimits()
	}
	return &Comp{deps: d}
}

func (c *Comp) Name() string { return "users" }

func (c *Comp) Migrations() []string {
	if c.deps.Audit == nil {
		return nil
	}
	return []string{audit.Schema}
}

func (c *Comp) Routes(r chi.Router) {
	r.Get("/api/roles", c.listRoles)
	r.Post("/api/roles/{role}/forms", c.openForm)

	r.Route("/api/forms", func(r chi.Router) {
		r.Route("/{id}", func(r chi.Router) {
			r.Use(c.loadForm)

			r.Get("/", c.getForm)
			r.Delete("/", c.closeForm)
			r.Put("/fields/{key}", c.updateField)
			r.Post("/toggle/{flag}", c.toggle)
			r.Post("/items/{key}/{itemID}", c.toggleItem)
			r.Delete("/items/{key}/{itemID}", c.removeItem)
			r.Delete("/items/{key}", c.clearItems)
			r.Post("/image", c.selectImage)
			r.Delete("/image", c.removeImage)
			r.Post("/reset", c.reset)
			r.Post("/submit", c.submit)
		})
	})

	if c.deps.Audit != nil {
		r.Get("/api/audit", c.listAudit)
	}
}

// buildForm constructs a fresh form for v.
func (c *Comp) buildForm(v *role.Variant) func(context.Context) (*form.Form, error) {
	return func(context.Context) (*form.Form, error) {
		return form.New(v.Options(c.deps.Creator, c.deps.Validator, c.deps.Upload, c.deps.Logger))
	}
}
