// internal/session/store.go
//
// Adept Users – in-memory store of open forms.
//
// Context
//   A Form lives from the moment the operator opens the "create user"
//   dialog until it is submitted, closed, or abandoned.  Store keeps the
//   live forms in a sync.Map keyed by signed handle, and evicts them on idle
//   TTL or LRU pressure so abandoned dialogs do not pin memory.  Evicted
//   forms are Closed, which turns any late submission result into a no-op.
//
// Workflow
//   •  Open registers a new form.  Requests carrying the same idempotency
//      key share one form; singleflight collapses concurrent retries.
//   •  Get verifies the handle, refreshes lastSeen, and returns the form.
//   •  Run drives the evictor until ctx is cancelled (evictor.go).
//
//------------------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/adept-users/internal/form"
	"github.com/yanizio/adept-users/internal/metrics"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultMaxEntries    = 1000
	DefaultEvictInterval = time.Minute
)

// ErrNotFound is returned for unknown, forged, expired, or closed handles.
var ErrNotFound = errors.New("session: form not found")

// Options configures a Store.
type Options struct {
	IdleTTL       time.Duration
	MaxEntries    int
	EvictInterval time.Duration
	Signer        *Signer
	Logger        *zap.SugaredLogger
}

type entry struct {
	id       string
	form     *form.Form
	idemKey  string
	lastSeen atomic.Int64 // UnixNano
}

func (e *entry) touch(now time.Time) { e.lastSeen.Store(now.UnixNano()) }

// Store holds open forms.
type Store struct {
	signer     *Signer
	sfg        singleflight.Group
	m          sync.Map // handle → *entry
	idem       sync.Map // idempotency key → handle
	idleTTL    time.Duration
	maxEntries int
	interval   time.Duration
	log        *zap.SugaredLogger
	now        func() time.Time
}

// New constructs a Store.  Call Run to start eviction.
func New(opts Options) (*Store, error) {
	s := &Store{
		signer:     opts.Signer,
		idleTTL:    opts.IdleTTL,
		maxEntries: opts.MaxEntries,
		interval:   opts.EvictInterval,
		log:        opts.Logger,
		now:        time.Now,
	}
	if s.signer == nil {
		var err error
		if s.signer, err = NewSigner(nil, 0); err != nil {
			return nil, err
		}
	}
	if s.idleTTL <= 0 {
		s.idleTTL = DefaultIdleTTL
	}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}
	if s.interval <= 0 {
		s.interval = DefaultEvictInterval
	}
	if s.log == nil {
		s.log = zap.S()
	}
	return s, nil
}

// Open registers the form built by build and returns its handle.  A
// non-empty idemKey returns the form already opened under that key, if it
// is still live.
func (s *Store) Open(ctx context.Context, idemKey string, build func(context.Context) (*form.Form, error)) (string, *form.Form, error) {
	if idemKey == "" {
		return s.open(ctx, "", build)
	}

	v, err, _ := s.sfg.Do(idemKey, func() (any, error) {
		if id, ok := s.idem.Load(idemKey); ok {
			if f, err := s.Get(id.(string)); err == nil {
				return &entry{id: id.(string), form: f}, nil
			}
			s.idem.Delete(idemKey)
		}
		id, f, err := s.open(ctx, idemKey, build)
		if err != nil {
			return nil, err
		}
		return &entry{id: id, form: f}, nil
	})
	if err != nil {
		return "", nil, err
	}
	ent := v.(*entry)
	return ent.id, ent.form, nil
}

func (s *Store) open(ctx context.Context, idemKey string, build func(context.Context) (*form.Form, error)) (string, *form.Form, error) {
	f, err := build(ctx)
	if err != nil {
		return "", nil, err
	}
	id, err := s.signer.Issue()
	if err != nil {
		f.Close()
		return "", nil, err
	}

	ent := &entry{id: id, form: f, idemKey: idemKey}
	ent.touch(s.now())
	s.m.Store(id, ent)
	if idemKey != "" {
		s.idem.Store(idemKey, id)
	}

	metrics.FormsOpen.Inc()
	metrics.FormsOpenedTotal.WithLabelValues(f.Role()).Inc()
	return id, f, nil
}

// Get returns the live form for id.
func (s *Store) Get(id string) (*form.Form, error) {
	if !s.signer.Verify(id) {
		return nil, ErrNotFound
	}
	v, ok := s.m.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	ent := v.(*entry)
	if ent.form.Closed() {
		s.remove(ent)
		return nil, ErrNotFound
	}
	ent.touch(s.now())
	return ent.form, nil
}

// Delete closes and forgets the form.  It reports whether id was live.
func (s *Store) Delete(id string) bool {
	v, ok := s.m.Load(id)
	if !ok {
		return false
	}
	s.remove(v.(*entry))
	return true
}

// Len returns the number of live forms.
func (s *Store) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// CloseAll discards every form.  Used at shutdown.
func (s *Store) CloseAll() {
	s.m.Range(func(_, v any) bool {
		s.remove(v.(*entry))
		return true
	})
}

// remove closes ent's form and drops both index entries.  Safe to call
// more than once.
func (s *Store) remove(ent *entry) {
	if _, loaded := s.m.LoadAndDelete(ent.id); !loaded {
		return
	}
	if ent.idemKey != "" {
		s.idem.CompareAndDelete(ent.idemKey, ent.id)
	}
	ent.form.Close()
	metrics.FormsOpen.Dec()
}
