package database

import (
	"context"
	"errors"

	"github.com/koustreak/relicmart/internal/errs"
)

// ContextError translates a context cancellation or deadline into an
// errs.ErrKindTimeout error. ok is false for any other error, leaving the
// backend to classify it.
func ContextError(err error, msg string) (_ *errs.Error, ok bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err), true
	}
	return nil, false
}

// ConnectionError wraps err as a connectivity failure for cfg, naming the
// target without the password.
func ConnectionError(cfg DbConfig, err error) *errs.Error {
	return errs.Wrap(errs.ErrKindConnectionFailed,
		"failed to connect to "+cfg.Addr()+"/"+cfg.Database+" as "+cfg.User, err)
}
