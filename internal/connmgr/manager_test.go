package connmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePool records closes. Close optionally blocks until release is
// closed, standing in for a pool with checked-out connections.
type fakePool struct {
	name     string
	probeErr error
	closeErr error
	closed   atomic.Bool
	release  chan struct{}
}

func (p *fakePool) Probe(context.Context) error { return p.probeErr }
func (p *fakePool) Exec(context.Context, string, ...any) (database.Result, error) {
	return database.Result{}, nil
}
func (p *fakePool) Query(context.Context, string, ...any) (database.Rows, error) { return nil, nil }
func (p *fakePool) QueryRow(context.Context, string, ...any) database.Row       { return nil }
func (p *fakePool) Dialect() database.Dialect                                    { return database.DialectPostgres }
func (p *fakePool) Close() error {
	if p.release != nil {
		<-p.release
	}
	p.closed.Store(true)
	return p.closeErr
}

type fakeProvisioner struct {
	mu     sync.Mutex
	err    error
	tables []string
}

func (f *fakeProvisioner) EnsureTable(_ context.Context, _ database.Pool, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, table)
	return f.err
}

func (f *fakeProvisioner) Columns(context.Context, database.Pool, string) ([]string, error) {
	return []string{"Id", "Name"}, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	results   []string
	active    bool
	closeErrs []error
}

func (r *fakeRecorder) Reconfigured(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *fakeRecorder) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

func (r *fakeRecorder) RetiredClosed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeErrs = append(r.closeErrs, err)
}

type harness struct {
	m    *Manager
	prov *fakeProvisioner
	rec  *fakeRecorder

	mu      sync.Mutex
	opened  []*fakePool
	next    func(p *fakePool) // shapes the pool returned by the next open
	openErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{prov: &fakeProvisioner{}, rec: &fakeRecorder{}}
	open := func(_ context.Context, c database.DbConfig, _ database.PoolOptions) (database.Pool, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.openErr != nil {
			return nil, h.openErr
		}
		p := &fakePool{name: c.Host + "/" + c.Table}
		if h.next != nil {
			h.next(p)
			h.next = nil
		}
		h.opened = append(h.opened, p)
		return p, nil
	}
	h.m = New(Options{
		Openers: map[database.Driver]database.Opener{
			database.DriverPostgres: open,
			database.DriverMySQL:    open,
		},
		Provisioner: h.prov,
		Pool:        database.DefaultPoolOptions(),
		Recorder:    h.rec,
	})
	return h
}

func (h *harness) pool(i int) *fakePool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened[i]
}

func cfg(host, table string) database.DbConfig {
	return database.DbConfig{
		Host: host, Port: 5432, Database: "shop", Table: table,
		User: "app", Password: "secret",
	}
}

func TestReconfigure_PublishesNewState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Nil(t, h.m.Active())

	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))
	s := h.m.Active()
	require.NotNil(t, s)
	assert.Equal(t, "dnd", s.Table)
	assert.Equal(t, database.DriverPostgres, s.Config.Driver, "driver defaults to postgres")
	assert.Same(t, h.pool(0), s.Pool.(*fakePool))
	assert.Equal(t, []string{"dnd"}, h.prov.tables)
	assert.Equal(t, []string{metrics.ResultSuccess}, h.rec.results)
	assert.True(t, h.rec.active)
}

func TestReconfigure_RetiresPreviousPool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db2", "dnd_v2")))
	h.m.Wait()

	s := h.m.Active()
	assert.Equal(t, "dnd_v2", s.Table)
	assert.Equal(t, "db2", s.Config.Host)
	assert.True(t, h.pool(0).closed.Load(), "old pool closed")
	assert.False(t, h.pool(1).closed.Load(), "new pool stays open")
}

func TestReconfigure_ProbeFailureKeepsOldState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))
	before := h.m.Active()

	h.next = func(p *fakePool) { p.probeErr = errors.New("password authentication failed") }
	err := h.m.Reconfigure(ctx, cfg("db2", "other"))

	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Same(t, before, h.m.Active())
	assert.True(t, h.pool(1).closed.Load(), "rejected pool closed")
	assert.False(t, h.pool(0).closed.Load(), "active pool untouched")
	assert.Equal(t, metrics.ResultConnection, h.rec.results[1])
}

func TestReconfigure_OpenFailure(t *testing.T) {
	h := newHarness(t)
	h.openErr = errors.New("dial tcp: connection refused")

	err := h.m.Reconfigure(context.Background(), cfg("nowhere", "dnd"))
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Contains(t, err.Error(), "nowhere:5432")
	assert.NotContains(t, err.Error(), "secret")
	assert.Nil(t, h.m.Active())
}

func TestReconfigure_SchemaFailureKeepsOldState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))
	before := h.m.Active()

	h.prov.err = errors.New("permission denied for schema public")
	err := h.m.Reconfigure(ctx, cfg("db1", "locked"))

	require.Error(t, err)
	assert.True(t, errs.IsSchema(err))
	assert.Same(t, before, h.m.Active())
	assert.True(t, h.pool(1).closed.Load())
}

func TestReconfigure_ValidationOpensNothing(t *testing.T) {
	h := newHarness(t)

	bad := cfg("db1", "dnd; DROP TABLE x")
	err := h.m.Reconfigure(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, h.opened)

	err = h.m.Reconfigure(context.Background(), database.DbConfig{})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, h.opened)
}

func TestReconfigure_UnknownDriver(t *testing.T) {
	h := newHarness(t)
	h.m.openers = map[database.Driver]database.Opener{}

	err := h.m.Reconfigure(context.Background(), cfg("db1", "dnd"))
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err) || errs.IsValidation(err))
	assert.Nil(t, h.m.Active())
}

func TestTest_NeverTouchesActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))
	before := h.m.Active()

	require.NoError(t, h.m.Test(ctx, cfg("db2", "other")))
	assert.Same(t, before, h.m.Active())
	assert.True(t, h.pool(1).closed.Load(), "trial pool closed")

	h.next = func(p *fakePool) { p.probeErr = errors.New("unreachable") }
	err := h.m.Test(ctx, cfg("db3", "other"))
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Same(t, before, h.m.Active())
	assert.Equal(t, []string{"dnd"}, h.prov.tables, "Test never provisions")
}

func TestRetirementWaitsForInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := make(chan struct{})
	h.next = func(p *fakePool) { p.release = release }
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))

	done := make(chan struct{})
	go func() {
		require.NoError(t, h.m.Reconfigure(ctx, cfg("db2", "dnd")))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reconfigure blocked on retiring the old pool")
	}
	assert.Equal(t, "db2", h.m.Active().Config.Host)
	assert.False(t, h.pool(0).closed.Load(), "old pool still draining")

	close(release)
	h.m.Wait()
	assert.True(t, h.pool(0).closed.Load())
}

func TestConcurrentReadersSeeConsistentState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.Reconfigure(ctx, cfg("a", "table_a")))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var mismatches atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := h.m.Active()
				if s.Pool.(*fakePool).name != s.Config.Host+"/"+s.Table {
					mismatches.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			require.NoError(t, h.m.Reconfigure(ctx, cfg("b", "table_b")))
		} else {
			require.NoError(t, h.m.Reconfigure(ctx, cfg("a", "table_a")))
		}
	}
	close(stop)
	wg.Wait()
	h.m.Wait()

	assert.Zero(t, mismatches.Load())
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	st := h.m.Status()
	assert.False(t, st.Connected)
	assert.Nil(t, st.ActivatedAt)

	c := cfg("db1", "dnd")
	c.Driver = database.DriverMySQL
	c.Port = 3306
	require.NoError(t, h.m.Reconfigure(context.Background(), c))

	st = h.m.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "mysql", st.Driver)
	assert.Equal(t, "db1", st.Host)
	assert.Equal(t, 3306, st.Port)
	assert.Equal(t, "dnd", st.Table)
	assert.Equal(t, "app", st.User)
	assert.NotNil(t, st.ActivatedAt)
	assert.False(t, st.Reconfiguring)
}

func TestInspect(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Reconfigure(context.Background(), cfg("db1", "dnd")))

	st, err := h.m.Inspect(context.Background(), func(have []string) []string {
		return []string{"Price"}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name"}, st.Columns)
	assert.Equal(t, []string{"Price"}, st.MissingColumns)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))

	require.NoError(t, h.m.Close(ctx))
	assert.Nil(t, h.m.Active())
	assert.True(t, h.pool(0).closed.Load())
	assert.False(t, h.rec.active)

	err := h.m.Reconfigure(ctx, cfg("db2", "dnd"))
	require.Error(t, err)
	assert.True(t, errs.IsUnavailable(err))

	assert.NoError(t, h.m.Close(ctx), "second Close is a no-op")
}

func TestRetire_ReportsCloseError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	closeErr := errors.New("invalid connection")
	h.next = func(p *fakePool) { p.closeErr = closeErr }
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db1", "dnd")))
	require.NoError(t, h.m.Reconfigure(ctx, cfg("db2", "dnd")))
	h.m.Wait()

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	require.Len(t, h.rec.closeErrs, 1)
	assert.Equal(t, closeErr, h.rec.closeErrs[0])
}

func TestClosePool_RecoversPanic(t *testing.T) {
	err := closePool(panickyPool{&fakePool{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

type panickyPool struct{ *fakePool }

func (panickyPool) Close() error { panic("double close") }

func TestClose_BoundedDrain(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	defer close(release)
	h.next = func(p *fakePool) { p.release = release }
	require.NoError(t, h.m.Reconfigure(context.Background(), cfg("db1", "dnd")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.m.Close(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.Nil(t, h.m.Active())
}
