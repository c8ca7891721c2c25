package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/logger"
)

// imageTypes maps accepted sniffed content types to key extensions.
var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Images uploads item pictures and builds their links.
type Images struct {
	store Store
	cfg   Config
	log   *logger.Logger
}

// NewImages wraps store. cfg supplies the link strategy and size cap.
func NewImages(store Store, cfg Config, log *logger.Logger) *Images {
	if log == nil {
		log = logger.Nop()
	}
	return &Images{store: store, cfg: cfg, log: log.Component("images")}
}

// MaxBytes is the largest upload Upload accepts.
func (im *Images) MaxBytes() int64 {
	return im.cfg.MaxBytes
}

// Upload stores one image for itemID under a fresh random key and returns
// the link to save on the item. The content type is sniffed from the
// bytes; the client's claim is ignored.
func (im *Images) Upload(ctx context.Context, itemID int64, r io.Reader, size int64) (string, error) {
	if size <= 0 {
		return "", errs.New(errs.ErrKindValidation, "image is empty")
	}
	if im.cfg.MaxBytes > 0 && size > im.cfg.MaxBytes {
		return "", errs.Newf(errs.ErrKindValidation, "image exceeds %d bytes", im.cfg.MaxBytes)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", errs.Wrap(errs.ErrKindValidation, "reading image", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := imageTypes[contentType]
	if !ok {
		return "", errs.Newf(errs.ErrKindValidation, "unsupported image type %q", contentType)
	}

	key := fmt.Sprintf("items/%d/%s%s", itemID, uuid.NewString(), ext)
	body := io.MultiReader(bytes.NewReader(head), r)

	if _, err := im.store.PutObject(ctx, key, body, size, contentType); err != nil {
		return "", err
	}

	// Links are only handed out for objects the store can describe back.
	info, err := im.store.StatObject(ctx, key)
	if err == nil && info.Size != size {
		err = errs.Newf(errs.ErrKindUnknown, "stored image is %d bytes, expected %d", info.Size, size)
	}
	if err != nil {
		if rmErr := im.store.RemoveObject(ctx, key); rmErr != nil {
			im.log.WarnWith("removing unconfirmed image", rmErr, map[string]interface{}{"key": key})
		}
		return "", err
	}
	im.log.With().Str("key", info.Key).Int("bytes", int(info.Size)).Logger().Info("image stored")

	return im.Link(ctx, key)
}

// Link returns the URL clients use for key.
func (im *Images) Link(ctx context.Context, key string) (string, error) {
	if im.cfg.PublicURL != "" {
		return strings.TrimRight(im.cfg.PublicURL, "/") + "/" + key, nil
	}
	return im.store.PresignGetURL(ctx, key, im.cfg.URLTTL)
}

// Discard removes an uploaded object whose link could not be saved.
func (im *Images) Discard(ctx context.Context, link string) {
	key := im.keyOf(link)
	if key == "" {
		return
	}
	if err := im.store.RemoveObject(ctx, key); err != nil {
		im.log.WarnWith("discarding orphaned image", err, map[string]interface{}{"key": key})
	}
}

// keyOf recovers the object key from a link built by Link.
func (im *Images) keyOf(link string) string {
	i := strings.Index(link, "items/")
	if i < 0 {
		return ""
	}
	key := link[i:]
	if q := strings.IndexByte(key, '?'); q >= 0 {
		key = key[:q]
	}
	return key
}

// Ping checks the backing store.
func (im *Images) Ping(ctx context.Context) error {
	return im.store.Ping(ctx)
}
