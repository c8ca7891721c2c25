package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/relicmart/internal/errs"
	minioErr "github.com/minio/minio-go/v7"
)

// codeKinds classifies S3 error codes. Credential rejections are the
// server's own misconfiguration, so they surface as connection failures
// rather than as the caller's 401.
var codeKinds = map[string]errs.ErrKind{
	"NoSuchBucket":          errs.ErrKindNotFound,
	"NoSuchKey":             errs.ErrKindNotFound,
	"NoSuchUpload":          errs.ErrKindNotFound,
	"AccessDenied":          errs.ErrKindConnectionFailed,
	"InvalidAccessKeyId":    errs.ErrKindConnectionFailed,
	"SignatureDoesNotMatch": errs.ErrKindConnectionFailed,
	"InvalidBucketName":     errs.ErrKindValidation,
	"InvalidObjectName":     errs.ErrKindValidation,
	"KeyTooLongError":       errs.ErrKindValidation,
	"EntityTooLarge":        errs.ErrKindValidation,
	"RequestTimeout":        errs.ErrKindTimeout,
	"SlowDown":              errs.ErrKindTimeout,
}

// statusKinds is the fallback when the code is unfamiliar.
var statusKinds = map[int]errs.ErrKind{
	http.StatusNotFound:     errs.ErrKindNotFound,
	http.StatusForbidden:    errs.ErrKindConnectionFailed,
	http.StatusUnauthorized: errs.ErrKindConnectionFailed,
	http.StatusBadRequest:   errs.ErrKindValidation,
}

// mapError translates a MinIO SDK error into a *errs.Error, the same way
// the database backends classify driver errors.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp minioErr.ErrorResponse
	if errors.As(err, &resp) {
		if kind, ok := codeKinds[resp.Code]; ok {
			return errs.Wrap(kind, msg, err)
		}
		if kind, ok := statusKinds[resp.StatusCode]; ok {
			return errs.Wrap(kind, msg, err)
		}
	}

	// Network and I/O failures.
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
