package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Bucket: "_cache"}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := New(Config{Client: rdb}); !errors.Is(err, ErrNoBucket) {
		t.Fatalf("expected ErrNoBucket, got %v", err)
	}
	p, err := New(Config{Client: rdb, Bucket: "_cache"})
	if err != nil {
		t.Fatal(err)
	}
	if p.scanCount != 500 || p.propsKey() != "_props:_cache" || p.prefix != "_cache:" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	// not owned: Close must leave the client alone
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := rdb.Ping(context.Background()).Err(); errors.Is(err, goredis.ErrClosed) {
		t.Fatalf("provider closed a client it does not own")
	}
}

func TestGlobEscape(t *testing.T) {
	cases := map[string]string{
		"_cache:":  "_cache:",
		"a*b?:":    `a\*b\?:`,
		"[x]:":     `\[x\]:`,
		`back\sl:`: `back\\sl:`,
	}
	for in, want := range cases {
		if got := globEscape(in); got != want {
			t.Fatalf("globEscape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruthy(t *testing.T) {
	if !truthy("1") || !truthy("true") {
		t.Fatalf("expected truthy")
	}
	if truthy(nil) || truthy("0") || truthy(1) {
		t.Fatalf("expected falsy")
	}
	if flag(true) != "1" || flag(false) != "0" {
		t.Fatalf("flag encoding")
	}
}
