// cmd/web/main.go
//
// Adept Users – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load configuration (defaults → .env → conf/global.yaml → USERS_ env),
//     resolving `vault:` references through a lazily created Vault client.
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Open the audit database when `database.dsn` is set.
//
//  4. Build the role catalogue, the users-service client, and the form
//     session store.
//
//  5. Build the chi router:
//
//     • RequestID → Logger → Recoverer → Security → requestinfo
//     • users component (forms API)
//     • /metrics and /healthz
//
//  6. Run the HTTP server(s) and the session evictor under one errgroup;
//     SIGINT or SIGTERM drains everything.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/adept-users/components/users"
	"github.com/yanizio/adept-users/internal/audit"
	"github.com/yanizio/adept-users/internal/component"
	"github.com/yanizio/adept-users/internal/config"
	"github.com/yanizio/adept-users/internal/database"
	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/logger"
	"github.com/yanizio/adept-users/internal/middleware"
	"github.com/yanizio/adept-users/internal/requestinfo"
	"github.com/yanizio/adept-users/internal/role"
	"github.com/yanizio/adept-users/internal/server"
	"github.com/yanizio/adept-users/internal/session"
	"github.com/yanizio/adept-users/internal/userapi"
	"github.com/yanizio/adept-users/internal/vault"
)

// shutdownGrace bounds the drain after a signal.
const shutdownGrace = 20 * time.Second

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("adept-users: %v", err)
	}
}

func run(ctx context.Context) error {
	//
	// ── 1.  Configuration ───────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx, func(ctx context.Context) (config.SecretResolver, error) {
		return vault.New(ctx, zap.S())
	})
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	logOut, err := logger.New(cfg.Log.Dir, runningInTTY(), cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 3.  Audit database (optional) ───────────────────────────────────
	//
	var (
		db         *sqlx.DB
		auditStore *audit.Store
	)
	if cfg.Database.Enabled() {
		logOut.Infow("connecting to audit DB",
			"max_open", cfg.Database.MaxOpen, "max_idle", cfg.Database.MaxIdle)
		if db, err = database.OpenWithOptions(ctx, cfg.Database.FormattedDSN(),
			cfg.Database.MaxOpen, cfg.Database.MaxIdle); err != nil {
			return err
		}
		defer db.Close()
		auditStore = audit.NewStore(db)
		logOut.Infow("audit DB online")
	}

	//
	// ── 4.  Domain services ─────────────────────────────────────────────
	//
	catalogue, err := role.Load(cfg.Roles.Dir, newActionFactory(auditStore), logOut)
	if err != nil {
		return err
	}

	creator, err := userapi.New(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	if err != nil {
		return err
	}

	signer, err := session.NewSigner(cfg.SessionSecret(), cfg.Sessions.MaxAge)
	if err != nil {
		return err
	}
	if cfg.SessionSecret() == nil {
		logOut.Warnw("sessions.secret not set, using a random key; open forms will not survive a restart")
	}
	store, err := session.New(session.Options{
		IdleTTL:       cfg.Sessions.IdleTTL,
		MaxEntries:    cfg.Sessions.MaxEntries,
		EvictInterval: cfg.Sessions.EvictInterval,
		Signer:        signer,
		Logger:        logOut,
	})
	if err != nil {
		return err
	}
	defer store.CloseAll()

	enricher, err := requestinfo.NewEnricher(cfg.Geo.DBPath)
	if err != nil {
		return err
	}
	defer enricher.Close()

	//
	// ── 5.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logOut))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security(cfg.HTTP.ForceHTTPS))
	r.Use(enricher.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.HTTP.MetricsAddr == "" {
		r.Handle("/metrics", promhttp.Handler())
	}

	usersComp := users.New(users.Deps{
		Catalogue: catalogue,
		Store:     store,
		Creator:   creator,
		Validator: form.NewValidator(cfg.Password),
		Upload:    cfg.Upload,
		Audit:     auditStore,
		Logger:    logOut,
	})
	if err := component.Mount(ctx, r, db, logOut, usersComp); err != nil {
		return err
	}

	var root http.Handler = r
	if cfg.HTTP.ForceHTTPS {
		root = middleware.ForceHTTPS(root)
	}

	//
	// ── 6.  Serve ───────────────────────────────────────────────────────
	//
	servers := []*http.Server{server.New(cfg.HTTP.ListenAddr, root, cfg.API.Timeout)}
	if cfg.HTTP.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, server.New(cfg.HTTP.MetricsAddr, mux, 0))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return store.Run(gctx) })

	for _, srv := range servers {
		g.Go(func() error {
			logOut.Infow("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logOut.Infow("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
