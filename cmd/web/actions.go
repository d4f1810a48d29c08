package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/yanizio/adept-users/internal/audit"
	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/role"
)

// newActionFactory resolves role action declarations.  auditStore may be
// nil, in which case declaring an audit action is a startup error.
func newActionFactory(auditStore *audit.Store) role.ActionFactory {
	hooks := &http.Client{Timeout: 10 * time.Second}

	return func(r role.Role, def role.ActionDef) (form.Action, error) {
		switch def.Type {
		case "audit":
			if auditStore == nil {
				return nil, fmt.Errorf("role %s: audit action needs database.dsn", r)
			}
			return audit.NewAction(auditStore), nil

		case "webhook":
			wh := &form.WebhookAction{Client: hooks}
			if err := mapstructure.Decode(def.Params, wh); err != nil {
				return nil, fmt.Errorf("role %s: webhook params: %w", r, err)
			}
			if wh.URL == "" {
				return nil, fmt.Errorf("role %s: webhook action requires url", r)
			}
			return wh, nil

		default:
			return nil, fmt.Errorf("role %s: unknown action type %q", r, def.Type)
		}
	}
}
