// internal/component/component.go
//
// Component contract and mounting.
//
// Each feature lives under components/<name>, is constructed by cmd/web with
// its dependencies, and registers its routes on the root router.  Components
// that own tables return their DDL from Migrations(); Mount runs every
// statement before any route is reachable.

package component

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Component contract.
//
// Migrations() may return nil if the component has no schema.  Statements
// must be idempotent (CREATE TABLE IF NOT EXISTS …).
type Component interface {
	Name() string
	Routes(r chi.Router)
	Migrations() []string
}

// Mount applies migrations against db (skipped when db is nil) and registers
// every component's routes on r.
func Mount(ctx context.Context, r chi.Router, db *sqlx.DB, log *zap.SugaredLogger, comps ...Component) error {
	for _, c := range comps {
		if db != nil {
			for i, stmt := range c.Migrations() {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("component %s: migration %d: %w", c.Name(), i, err)
				}
			}
		}
		c.Routes(r)
		log.Infow("component mounted", "component", c.Name())
	}
	return nil
}
