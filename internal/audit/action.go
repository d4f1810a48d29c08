package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/requestinfo"
)

// Action records successful creations.  It implements form.Action.
type Action struct {
	store *Store
	now   func() time.Time
}

// NewAction returns an audit action backed by store.
func NewAction(store *Store) *Action {
	return &Action{store: store, now: time.Now}
}

// Name implements form.Action.
func (a *Action) Name() string { return "audit" }

// Run implements form.Action.  Client details come from the request that
// triggered the submission, when the requestinfo middleware ran.
func (a *Action) Run(ctx context.Context, ev form.Created) error {
	email, _ := ev.Fields["email"].(string)
	rec := Record{
		Role:      ev.Role,
		Email:     email,
		CreatedAt: ev.At,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}
	if id, ok := ev.User["id"]; ok && id != nil {
		rec.RemoteUserID = sql.NullString{String: fmt.Sprint(id), Valid: true}
	}
	if info := requestinfo.FromContext(ctx); info != nil {
		rec.Browser = info.UA.Browser
		rec.Device = info.UA.Device
		rec.Country = info.Geo.CountryISO
	}

	if _, err := a.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}
