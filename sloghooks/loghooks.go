package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/riakcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredEvery    uint64
	StoreErrorEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredCtr  atomic.Uint64
	storeErrCtr atomic.Uint64
}

var _ riakcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ExpiredOnRead(storageKey string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("riakcache.expired_on_read",
		"key", h.redact(storageKey))
}

func (h *Hooks) StoreError(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.StoreErrorEvery, &h.storeErrCtr) {
		return
	}
	args := []any{"op", op, "err", err}
	if storageKey != "" {
		args = append(args, "key", h.redact(storageKey))
	}
	h.l.Warn("riakcache.store_error", args...)
}

func (h *Hooks) DivergenceDisabled(bucket string) {
	if h.l == nil {
		return
	}
	h.l.Warn("riakcache.divergence_disabled",
		"bucket", bucket,
		"msg", "bucket allowed siblings; allow_mult set to false")
}

func (h *Hooks) MatchedDeleted(bucket string, scanned, deleted int) {
	if h.l == nil {
		return
	}
	h.l.Info("riakcache.matched_deleted",
		"bucket", bucket,
		"scanned", scanned,
		"deleted", deleted)
}
