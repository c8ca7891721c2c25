package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/relicmart/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
	statErr error
	pingErr error
	short   bool // report stored objects one byte short
	removed []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }
func (m *memStore) Close() error               { return nil }

func (m *memStore) PutObject(_ context.Context, key string, r io.Reader, size int64, ct string) (*ObjectInfo, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.objects[key] = b
	m.types[key] = ct
	return &ObjectInfo{Key: key, Size: int64(len(b)), ContentType: ct}, nil
}

func (m *memStore) StatObject(_ context.Context, key string) (*ObjectInfo, error) {
	if m.statErr != nil {
		return nil, m.statErr
	}
	b, ok := m.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	size := int64(len(b))
	if m.short {
		size--
	}
	return &ObjectInfo{Key: key, Size: size}, nil
}

func (m *memStore) RemoveObject(_ context.Context, key string) error {
	m.removed = append(m.removed, key)
	delete(m.objects, key)
	return nil
}

func (m *memStore) PresignGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "http://minio.local/relicmart-images/" + key + "?X-Amz-Expires=" + ttl.String(), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Endpoint = "minio.local:9000"
	cfg.MaxBytes = 1024
	return cfg
}

func TestUpload_StoresSniffedPNG(t *testing.T) {
	store := newMemStore()
	im := NewImages(store, testConfig(), nil)

	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 600)...)
	link, err := im.Upload(context.Background(), 7, bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	require.Len(t, store.objects, 1)
	for key, got := range store.objects {
		assert.True(t, strings.HasPrefix(key, "items/7/"), key)
		assert.True(t, strings.HasSuffix(key, ".png"), key)
		assert.Equal(t, body, got, "sniffed header is replayed in full")
		assert.Equal(t, "image/png", store.types[key])
		assert.Contains(t, link, key)
	}
	assert.Contains(t, link, "X-Amz-Expires=168h0m0s")
}

func TestUpload_PublicURL(t *testing.T) {
	cfg := testConfig()
	cfg.PublicURL = "https://cdn.example.com/relics/"
	im := NewImages(newMemStore(), cfg, nil)

	link, err := im.Upload(context.Background(), 3, bytes.NewReader(pngHeader), int64(len(pngHeader)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://cdn.example.com/relics/items/3/"), link)
}

func TestUpload_Rejections(t *testing.T) {
	store := newMemStore()
	im := NewImages(store, testConfig(), nil)
	ctx := context.Background()

	_, err := im.Upload(ctx, 1, strings.NewReader("hello, world"), 12)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "unsupported image type")

	_, err = im.Upload(ctx, 1, bytes.NewReader(pngHeader), 4096)
	assert.True(t, errs.IsValidation(err), "over MaxBytes")

	_, err = im.Upload(ctx, 1, bytes.NewReader(nil), 0)
	assert.True(t, errs.IsValidation(err))

	assert.Empty(t, store.objects)
}

func TestUpload_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.putErr = errs.Wrap(errs.ErrKindConnectionFailed, "upload", errors.New("refused"))
	im := NewImages(store, testConfig(), nil)

	_, err := im.Upload(context.Background(), 1, bytes.NewReader(pngHeader), int64(len(pngHeader)))
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestUpload_UnconfirmedObjectRemoved(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*memStore)
		check func(*testing.T, error)
	}{
		{
			name:  "stat fails",
			setup: func(m *memStore) { m.statErr = errs.Wrap(errs.ErrKindConnectionFailed, "stat", errors.New("reset")) },
			check: func(t *testing.T, err error) { assert.True(t, errs.IsConnectionFailed(err)) },
		},
		{
			name:  "size mismatch",
			setup: func(m *memStore) { m.short = true },
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "expected") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			tt.setup(store)
			im := NewImages(store, testConfig(), nil)

			link, err := im.Upload(context.Background(), 5, bytes.NewReader(pngHeader), int64(len(pngHeader)))
			require.Error(t, err)
			tt.check(t, err)
			assert.Empty(t, link)
			assert.Empty(t, store.objects)
			require.Len(t, store.removed, 1)
			assert.True(t, strings.HasPrefix(store.removed[0], "items/5/"))
		})
	}
}

func TestPing(t *testing.T) {
	store := newMemStore()
	im := NewImages(store, testConfig(), nil)
	assert.NoError(t, im.Ping(context.Background()))

	store.pingErr = errs.New(errs.ErrKindConnectionFailed, "bucket unreachable")
	assert.True(t, errs.IsConnectionFailed(im.Ping(context.Background())))
}

func TestDiscard(t *testing.T) {
	store := newMemStore()
	im := NewImages(store, testConfig(), nil)

	im.Discard(context.Background(), "http://minio.local/relicmart-images/items/9/abc.png?X-Amz-Expires=1h")
	im.Discard(context.Background(), "https://elsewhere.example.com/picture.png")

	assert.Equal(t, []string{"items/9/abc.png"}, store.removed)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate(), "disabled config is valid")

	cfg := testConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Bucket = ""
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.URLTTL = 30 * 24 * time.Hour
	assert.Error(t, cfg.Validate())

	cfg.PublicURL = "https://cdn.example.com"
	assert.NoError(t, cfg.Validate(), "ttl irrelevant with a public URL")
}
