package filestore

import (
	"time"

	"github.com/koustreak/relicmart/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to the image bucket.
type Config struct {
	// Provider is the storage backend. Empty means ProviderMinIO.
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server, e.g.
	// "localhost:9000". Empty disables image uploads entirely.
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket receives every item image; created on startup if missing.
	Bucket string `yaml:"bucket"`

	// PublicURL, when set, is the prefix of permanent image links
	// (a CDN or a bucket with anonymous read). Without it image links are
	// presigned and expire after URLTTL.
	PublicURL string        `yaml:"publicURL"`
	URLTTL    time.Duration `yaml:"urlTTL"`

	// MaxBytes caps a single upload.
	MaxBytes int64 `yaml:"maxBytes"`
}

// MaxPresignTTL is the longest lifetime S3-style presigning allows.
const MaxPresignTTL = 7 * 24 * time.Hour

// DefaultConfig returns a disabled store with local-dev MinIO defaults for
// everything but the endpoint.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderMinIO,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "relicmart-images",
		URLTTL:    MaxPresignTTL,
		MaxBytes:  5 << 20,
	}
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Validate checks an enabled config.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Provider != "" && c.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindValidation, "filestore: unsupported provider %q", c.Provider)
	}
	if c.Bucket == "" {
		return errs.New(errs.ErrKindValidation, "filestore: bucket is required")
	}
	if c.MaxBytes <= 0 {
		return errs.New(errs.ErrKindValidation, "filestore: maxBytes must be positive")
	}
	if c.PublicURL == "" && (c.URLTTL <= 0 || c.URLTTL > MaxPresignTTL) {
		return errs.New(errs.ErrKindValidation, "filestore: urlTTL must be between 1s and 168h")
	}
	return nil
}
