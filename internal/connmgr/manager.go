// Package connmgr owns the single active database configuration: the pool,
// the item table it serves, and the config that produced them.
//
// Readers call Active once per operation and use the returned *State for
// the whole operation. A reconfiguration builds a complete new State off to
// the side and publishes it with one atomic pointer store, so a reader sees
// either the old pool with the old table or the new pool with the new
// table, never a mix. The superseded pool is closed in the background.
package connmgr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/logger"
	"github.com/koustreak/relicmart/internal/metrics"
)

// State is one published configuration. It is never mutated after Swap.
type State struct {
	Pool        database.Pool
	Table       string
	Config      database.DbConfig
	Dialect     database.Dialect
	ActivatedAt time.Time
}

// Provisioner prepares the item table on a freshly probed pool.
type Provisioner interface {
	EnsureTable(ctx context.Context, pool database.Pool, table string) error
	Columns(ctx context.Context, pool database.Pool, table string) ([]string, error)
}

// Recorder receives manager events. *metrics.Metrics satisfies it.
type Recorder interface {
	Reconfigured(result string)
	SetActive(active bool)
	RetiredClosed(err error)
}

type nopRecorder struct{}

func (nopRecorder) Reconfigured(string) {}
func (nopRecorder) SetActive(bool)      {}
func (nopRecorder) RetiredClosed(error) {}

// Options configures a Manager.
type Options struct {
	Openers     map[database.Driver]database.Opener
	Provisioner Provisioner
	Pool        database.PoolOptions
	Logger      *logger.Logger
	Recorder    Recorder
}

// Manager is safe for concurrent use.
type Manager struct {
	openers     map[database.Driver]database.Opener
	provisioner Provisioner
	poolOpts    database.PoolOptions
	log         *logger.Logger
	rec         Recorder

	state atomic.Pointer[State]

	// mu serializes Reconfigure and Close; readers never take it.
	mu            sync.Mutex
	closed        bool
	reconfiguring atomic.Bool

	retiring sync.WaitGroup
}

// New builds a Manager in the Uninitialized state.
func New(opts Options) *Manager {
	m := &Manager{
		openers:     opts.Openers,
		provisioner: opts.Provisioner,
		poolOpts:    opts.Pool,
		log:         opts.Logger,
		rec:         opts.Recorder,
	}
	if m.log == nil {
		m.log = logger.Nop()
	}
	m.log = m.log.Component("connmgr")
	if m.rec == nil {
		m.rec = nopRecorder{}
	}
	if m.openers == nil {
		m.openers = map[database.Driver]database.Opener{}
	}
	return m
}

// Active returns the published state, or nil when no configuration has
// succeeded yet or the manager is closed.
func (m *Manager) Active() *State {
	return m.state.Load()
}

// Reconfigure validates cfg, opens and probes a brand-new pool, provisions
// the table on it and only then publishes it. On any failure the new pool
// is closed and the previous state stays active.
func (m *Manager) Reconfigure(ctx context.Context, cfg database.DbConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.rec.Reconfigured(metrics.ResultClosed)
		return errs.New(errs.ErrKindUnavailable, "connection manager is closed")
	}

	m.reconfiguring.Store(true)
	defer m.reconfiguring.Store(false)

	cfg, err := cfg.Validate()
	if err != nil {
		m.rec.Reconfigured(metrics.ResultValidation)
		return err
	}

	log := m.log.With().
		Str("driver", string(cfg.Driver)).
		Str("addr", cfg.Addr()).
		Str("database", cfg.Database).
		Str("table", cfg.Table).
		Logger()

	pool, err := m.openAndProbe(ctx, cfg)
	if err != nil {
		m.rec.Reconfigured(metrics.ResultConnection)
		log.ErrorWith("reconfigure rejected: connection", err, nil)
		return err
	}

	if err := m.provisioner.EnsureTable(ctx, pool, cfg.Table); err != nil {
		_ = pool.Close()
		m.rec.Reconfigured(metrics.ResultSchema)
		log.ErrorWith("reconfigure rejected: schema", err, nil)
		if errs.IsValidation(err) || errs.IsSchema(err) {
			return err
		}
		return errs.Wrap(errs.ErrKindSchema, "preparing table "+cfg.Table, err)
	}

	next := &State{
		Pool:        pool,
		Table:       cfg.Table,
		Config:      cfg,
		Dialect:     pool.Dialect(),
		ActivatedAt: time.Now().UTC(),
	}
	prev := m.state.Swap(next)

	m.rec.Reconfigured(metrics.ResultSuccess)
	m.rec.SetActive(true)
	log.Info("database reconfigured")

	if prev != nil {
		m.retire(prev)
	}
	return nil
}

// Test validates cfg and proves a pool can be opened and probed with it.
// The trial pool is always closed; the active state is never touched.
func (m *Manager) Test(ctx context.Context, cfg database.DbConfig) error {
	cfg, err := cfg.Validate()
	if err != nil {
		return err
	}
	pool, err := m.openAndProbe(ctx, cfg)
	if err != nil {
		return err
	}
	_ = pool.Close()
	return nil
}

func (m *Manager) openAndProbe(ctx context.Context, cfg database.DbConfig) (database.Pool, error) {
	open, ok := m.openers[cfg.Driver]
	if !ok {
		return nil, errs.Newf(errs.ErrKindValidation, "unsupported driver %q", cfg.Driver)
	}

	pool, err := open(ctx, cfg, m.poolOpts)
	if err != nil {
		return nil, database.ConnectionError(cfg, err)
	}

	probeCtx := ctx
	if m.poolOpts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.poolOpts.ProbeTimeout)
		defer cancel()
	}
	if err := pool.Probe(probeCtx); err != nil {
		_ = pool.Close()
		return nil, database.ConnectionError(cfg, err)
	}
	return pool, nil
}

// retire closes a superseded pool without blocking the caller. Close
// waits for connections still checked out by in-flight requests.
func (m *Manager) retire(prev *State) {
	m.retiring.Add(1)
	go func() {
		defer m.retiring.Done()
		err := closePool(prev.Pool)
		m.rec.RetiredClosed(err)
		if err != nil {
			m.log.WarnWith("closing retired pool", err, map[string]interface{}{
				"table": prev.Table,
				"addr":  prev.Config.Addr(),
			})
			return
		}
		m.log.With().Str("addr", prev.Config.Addr()).Str("table", prev.Table).Logger().
			Debug("retired pool closed")
	}()
}

func closePool(p database.Pool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool close panicked: %v", r)
		}
	}()
	return p.Close()
}

// Wait blocks until every retired pool has finished closing.
func (m *Manager) Wait() {
	m.retiring.Wait()
}

// Close unpublishes the active state and closes every pool the manager
// still owns, giving up when ctx is done. Later Reconfigure calls fail
// with errs.ErrKindUnavailable.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	prev := m.state.Swap(nil)
	m.mu.Unlock()

	m.rec.SetActive(false)
	if prev != nil {
		m.retire(prev)
	}

	done := make(chan struct{})
	go func() {
		m.retiring.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("connection manager closed")
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.ErrKindTimeout, "draining database pools", ctx.Err())
	}
}

// Status is the client-facing view of the active configuration. It never
// carries the password.
type Status struct {
	Connected     bool       `json:"connected"`
	Reconfiguring bool       `json:"reconfiguring"`
	Driver        string     `json:"driver,omitempty"`
	Host          string     `json:"host,omitempty"`
	Port          int        `json:"port,omitempty"`
	Database      string     `json:"database,omitempty"`
	Table         string     `json:"table,omitempty"`
	User          string     `json:"user,omitempty"`
	ActivatedAt   *time.Time `json:"activatedAt,omitempty"`

	// Populated only by Inspect.
	Columns        []string `json:"columns,omitempty"`
	MissingColumns []string `json:"missingColumns,omitempty"`
}

// Status reports the current state.
func (m *Manager) Status() Status {
	st := Status{Reconfiguring: m.reconfiguring.Load()}
	s := m.state.Load()
	if s == nil {
		return st
	}
	at := s.ActivatedAt
	st.Connected = true
	st.Driver = string(s.Config.Driver)
	st.Host = s.Config.Host
	st.Port = s.Config.Port
	st.Database = s.Config.Database
	st.Table = s.Table
	st.User = s.Config.User
	st.ActivatedAt = &at
	return st
}

// Inspect is Status plus the live column set of the active table, so a
// table that predates this service and diverges from the expected shape
// is visible to operators. The table itself is never altered.
func (m *Manager) Inspect(ctx context.Context, missing func([]string) []string) (Status, error) {
	st := m.Status()
	s := m.state.Load()
	if s == nil {
		return st, nil
	}
	cols, err := m.provisioner.Columns(ctx, s.Pool, s.Table)
	if err != nil {
		return st, err
	}
	st.Columns = cols
	if missing != nil {
		st.MissingColumns = missing(cols)
	}
	return st, nil
}
