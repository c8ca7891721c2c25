package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/relicmart/internal/auth"
	"github.com/koustreak/relicmart/internal/connmgr"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/item"
	"github.com/koustreak/relicmart/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

type fakeManager struct {
	mu         sync.Mutex
	active     *connmgr.State
	testErr    error
	reconfErr  error
	tested     []database.DbConfig
	configured []database.DbConfig
}

func (m *fakeManager) Active() *connmgr.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *fakeManager) Reconfigure(_ context.Context, cfg database.DbConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = append(m.configured, cfg)
	if m.reconfErr != nil {
		return m.reconfErr
	}
	m.active = &connmgr.State{Table: cfg.Table, Config: cfg, ActivatedAt: time.Now()}
	return nil
}

func (m *fakeManager) Test(_ context.Context, cfg database.DbConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tested = append(m.tested, cfg)
	return m.testErr
}

func (m *fakeManager) Status() connmgr.Status {
	s := m.Active()
	if s == nil {
		return connmgr.Status{}
	}
	return connmgr.Status{Connected: true, Host: s.Config.Host, Table: s.Table}
}

func (m *fakeManager) Inspect(_ context.Context, missing func([]string) []string) (connmgr.Status, error) {
	st := m.Status()
	st.Columns = []string{"Id", "Name"}
	st.MissingColumns = missing(st.Columns)
	return st, nil
}

type fakeItems struct {
	listOpts  item.ListOptions
	items     []item.Item
	total     int
	err       error
	updated   item.Fields
	deleteErr error
}

func (f *fakeItems) List(_ context.Context, opts item.ListOptions) ([]item.Item, int, error) {
	f.listOpts = opts
	return f.items, f.total, f.err
}

func (f *fakeItems) Get(_ context.Context, id int64) (item.Item, error) {
	if f.err != nil {
		return item.Item{}, f.err
	}
	return item.Item{ID: id, Name: "Sunblade"}, nil
}

func (f *fakeItems) Create(_ context.Context, _ item.Fields) (item.Item, error) {
	if f.err != nil {
		return item.Item{}, f.err
	}
	return item.Item{ID: 1, Name: "Sunblade", Price: 1500}, nil
}

func (f *fakeItems) Update(_ context.Context, id int64, fields item.Fields) (item.Item, error) {
	f.updated = fields
	if f.err != nil {
		return item.Item{}, f.err
	}
	it := item.Item{ID: id, Name: "Sunblade"}
	if raw, ok := fields["image"]; ok {
		var link string
		_ = json.Unmarshal(raw, &link)
		it.Image = &link
	}
	return it, nil
}

func (f *fakeItems) Delete(context.Context, int64) error { return f.deleteErr }

type fakeImages struct {
	uploaded  []byte
	discarded []string
	pingErr   error
}

func (f *fakeImages) Upload(_ context.Context, id int64, r io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.uploaded = b
	return "https://cdn.example.com/items/7/abc.png", nil
}

func (f *fakeImages) Discard(_ context.Context, link string) { f.discarded = append(f.discarded, link) }
func (f *fakeImages) MaxBytes() int64                        { return 1024 }
func (f *fakeImages) Ping(context.Context) error             { return f.pingErr }

func active() *connmgr.State {
	return &connmgr.State{Table: "dnd", Config: database.DbConfig{Host: "db1"}}
}

func newTestServer(mgr *fakeManager, items *fakeItems, mut func(*Options)) http.Handler {
	opts := Options{Manager: mgr, Items: items}
	if mut != nil {
		mut(&opts)
	}
	return New(opts).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

const dbBody = `{"host":"localhost","port":5432,"database":"shop","table":"dnd","user":"app","password":"pw"}`

func TestItemsRequireActiveDatabase(t *testing.T) {
	h := newTestServer(&fakeManager{}, &fakeItems{}, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/items"},
		{http.MethodGet, "/items/1"},
		{http.MethodPost, "/items"},
		{http.MethodPut, "/items/1"},
		{http.MethodDelete, "/items/1"},
	} {
		rec := do(t, h, tc.method, tc.path, "{}")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, "Database connection not available", decode(t, rec)["error"])
	}
}

func TestDBTest(t *testing.T) {
	mgr := &fakeManager{}
	h := newTestServer(mgr, &fakeItems{}, nil)

	rec := do(t, h, http.MethodPost, "/db/test", dbBody)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Connection successful", body["message"])
	require.Len(t, mgr.tested, 1)
	assert.Equal(t, "dnd", mgr.tested[0].Table)
	assert.Nil(t, mgr.Active(), "test never activates")

	mgr.testErr = errs.New(errs.ErrKindValidation, "host is required")
	rec = do(t, h, http.MethodPost, "/db/test", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "host is required", decode(t, rec)["error"])

	mgr.testErr = errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect to localhost:5432/shop as app", errors.New("connection refused"))
	rec = do(t, h, http.MethodPost, "/db/test", dbBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "connection refused")

	rec = do(t, h, http.MethodPost, "/db/test", `{"host":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDBConfigAndStatus(t *testing.T) {
	mgr := &fakeManager{}
	h := newTestServer(mgr, &fakeItems{}, nil)

	rec := do(t, h, http.MethodGet, "/db/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["connected"])

	rec = do(t, h, http.MethodPost, "/db/config", dbBody)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	status := body["status"].(map[string]any)
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "dnd", status["table"])
	assert.NotContains(t, rec.Body.String(), `"pw"`)

	rec = do(t, h, http.MethodGet, "/db/status?verbose=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Len(t, body["columns"], 2)
	assert.Contains(t, body["missingColumns"], "Base_Item")

	mgr.reconfErr = errs.Wrap(errs.ErrKindSchema, "creating table dnd", errors.New("permission denied"))
	rec = do(t, h, http.MethodPost, "/db/config", dbBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListItems(t *testing.T) {
	items := &fakeItems{items: []item.Item{{ID: 2, Name: "Mithral"}}, total: 40}
	h := newTestServer(&fakeManager{active: active()}, items, nil)

	rec := do(t, h, http.MethodGet, "/items?q=sun&rarity=Rare&rarity=Legendary&minPrice=10&maxPrice=99.5&page=2&pageSize=20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("X-Total-Count"))

	var got []item.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Mithral", got[0].Name)

	o := items.listOpts
	assert.Equal(t, "sun", o.Query)
	assert.Equal(t, []string{"Rare", "Legendary"}, o.Rarities)
	assert.Equal(t, 10.0, *o.MinPrice)
	assert.Equal(t, 99.5, *o.MaxPrice)
	assert.Equal(t, 2, o.Page)
	assert.Equal(t, 20, o.PageSize)

	rec = do(t, h, http.MethodGet, "/items?minPrice=cheap", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "minPrice must be a number", decode(t, rec)["error"])
}

func TestListItems_EmptyArray(t *testing.T) {
	h := newTestServer(&fakeManager{active: active()}, &fakeItems{items: []item.Item{}}, nil)

	rec := do(t, h, http.MethodGet, "/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestItemRoutes(t *testing.T) {
	items := &fakeItems{}
	h := newTestServer(&fakeManager{active: active()}, items, nil)

	rec := do(t, h, http.MethodGet, "/items/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/items/0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/items/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decode(t, rec)["id"])

	rec = do(t, h, http.MethodPost, "/items", `{"name":"Sunblade"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/items", `{"id":3,"name":"Sunblade"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], `"id"`)

	rec = do(t, h, http.MethodPut, "/items/7", `{"price":1200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, items.updated, "price")

	rec = do(t, h, http.MethodDelete, "/items/7", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	items.deleteErr = errs.New(errs.ErrKindNotFound, "item 7 not found")
	rec = do(t, h, http.MethodDelete, "/items/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "item 7 not found", decode(t, rec)["error"])

	items.err = errs.Wrap(errs.ErrKindQueryFailed, "listing items", errors.New("boom"))
	rec = do(t, h, http.MethodGet, "/items", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth_ReportsImageStore(t *testing.T) {
	images := &fakeImages{}
	h := newTestServer(&fakeManager{active: active()}, &fakeItems{}, func(o *Options) { o.Images = images })

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["database"])
	assert.Equal(t, true, body["images"])

	images.pingErr = errs.New(errs.ErrKindConnectionFailed, "bucket unreachable")
	rec = do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["images"])
}

func TestPublicRoutes(t *testing.T) {
	met := metrics.New()
	h := newTestServer(&fakeManager{}, &fakeItems{}, func(o *Options) { o.Metrics = met })

	rec := do(t, h, http.MethodGet, "/rarities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Common","Uncommon","Rare","Very Rare","Legendary"]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["database"])
	assert.NotContains(t, body, "images", "no image store configured")

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relicmart_http_requests_total")
}

func TestCORS(t *testing.T) {
	h := newTestServer(&fakeManager{}, &fakeItems{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/items", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestDBRateLimit(t *testing.T) {
	h := newTestServer(&fakeManager{}, &fakeItems{}, func(o *Options) {
		o.DBLimit = rate.Every(time.Hour)
		o.DBBurst = 1
	})

	rec := do(t, h, http.MethodPost, "/db/test", dbBody)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/db/config", dbBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodGet, "/db/status", "")
	assert.Equal(t, http.StatusOK, rec.Code, "status is not throttled")
}

func TestAuthEnabled(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := auth.New(auth.Config{
		Enabled:      true,
		Username:     "admin",
		PasswordHash: string(hash),
		Secret:       "0123456789abcdef0123456789abcdef",
		TokenTTL:     time.Hour,
	})
	require.NoError(t, err)

	mgr := &fakeManager{active: active()}
	h := newTestServer(mgr, &fakeItems{items: []item.Item{}}, func(o *Options) { o.Auth = a })

	rec := do(t, h, http.MethodPost, "/db/config", dbBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodDelete, "/items/1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/items", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay public")

	rec = do(t, h, http.MethodPost, "/auth/login", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/login", `{"username":"admin","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	rec = do(t, h, http.MethodPost, "/db/config", dbBody, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginDisabled(t *testing.T) {
	h := newTestServer(&fakeManager{}, &fakeItems{}, nil)
	rec := do(t, h, http.MethodPost, "/auth/login", `{"username":"admin","password":"admin123"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "sunblade.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	items := &fakeItems{}
	images := &fakeImages{}
	h := newTestServer(&fakeManager{active: active()}, items, func(o *Options) { o.Images = images })

	body, ct := multipartImage(t, "image", []byte("\x89PNG\r\n\x1a\nrest"))
	req := httptest.NewRequest(http.MethodPost, "/items/7/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://cdn.example.com/items/7/abc.png", decode(t, rec)["image"])
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), images.uploaded)
	assert.JSONEq(t, `"https://cdn.example.com/items/7/abc.png"`, string(items.updated["image"]))

	body, ct = multipartImage(t, "picture", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/items/7/image", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadImage_DiscardsOnSaveFailure(t *testing.T) {
	images := &fakeImages{}
	srv := New(Options{
		Manager: &fakeManager{active: active()},
		Items:   &failingUpdate{fakeItems: &fakeItems{}},
		Images:  images,
	}).Router()

	body, ct := multipartImage(t, "image", []byte("\x89PNG\r\n\x1a\n"))
	req := httptest.NewRequest(http.MethodPost, "/items/7/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"https://cdn.example.com/items/7/abc.png"}, images.discarded)
}

type failingUpdate struct{ *fakeItems }

func (f *failingUpdate) Update(context.Context, int64, item.Fields) (item.Item, error) {
	return item.Item{}, errs.Wrap(errs.ErrKindQueryFailed, "updating item", errors.New("boom"))
}

func TestUploadImage_NotConfigured(t *testing.T) {
	h := newTestServer(&fakeManager{active: active()}, &fakeItems{}, nil)

	body, ct := multipartImage(t, "image", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/items/7/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
