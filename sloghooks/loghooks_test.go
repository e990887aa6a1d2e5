package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})

	h.ExpiredOnRead("session:42")
	if strings.Contains(buf.String(), "session:42") {
		t.Fatalf("raw key leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "riakcache.expired_on_read") {
		t.Fatalf("event missing: %s", buf.String())
	}

	buf.Reset()
	h = New(l, Options{Redact: func(string) string { return "<k>" }})
	h.StoreError("read", "session:42", errors.New("timeout"))
	if !strings.Contains(buf.String(), "key=<k>") || !strings.Contains(buf.String(), "op=read") {
		t.Fatalf("custom redactor not applied: %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{StoreErrorEvery: 3})
	for i := 0; i < 9; i++ {
		h.StoreError("write", "k", errors.New("x"))
	}
	if n := strings.Count(buf.String(), "riakcache.store_error"); n != 3 {
		t.Fatalf("expected 3 sampled records, got %d", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.ExpiredOnRead("k")
	h.StoreError("read", "k", errors.New("x"))
	h.DivergenceDisabled("_cache")
	h.MatchedDeleted("_cache", 1, 1)
}
