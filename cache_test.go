package riakcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/riakcache/codec"
	"github.com/unkn0wn-root/riakcache/internal/keys"
	pr "github.com/unkn0wn-root/riakcache/provider"
	"github.com/unkn0wn-root/riakcache/provider/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type logEntry struct {
	level string
	msg   string
	f     Fields
}

type recLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level, msg, f})
	l.mu.Unlock()
}

func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

func (l *recLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type recHooks struct {
	NopHooks
	mu          sync.Mutex
	expired     []string
	storeErrs   []string
	divergence  int
	matchedRuns [][2]int
}

func (h *recHooks) ExpiredOnRead(k string) {
	h.mu.Lock()
	h.expired = append(h.expired, k)
	h.mu.Unlock()
}

func (h *recHooks) StoreError(op, _ string, _ error) {
	h.mu.Lock()
	h.storeErrs = append(h.storeErrs, op)
	h.mu.Unlock()
}

func (h *recHooks) DivergenceDisabled(string) {
	h.mu.Lock()
	h.divergence++
	h.mu.Unlock()
}

func (h *recHooks) MatchedDeleted(_ string, scanned, deleted int) {
	h.mu.Lock()
	h.matchedRuns = append(h.matchedRuns, [2]int{scanned, deleted})
	h.mu.Unlock()
}

// flakyProvider fails the operations whose error field is set.
type flakyProvider struct {
	*memory.Memory
	propsErr, setPropsErr error
	fetchErr, storeErr    error
	deleteErr, keysErr    error
	failDelete            map[string]bool // raw keys whose Delete fails
}

func (p *flakyProvider) Props(ctx context.Context) (pr.Props, error) {
	if p.propsErr != nil {
		return pr.Props{}, p.propsErr
	}
	return p.Memory.Props(ctx)
}

func (p *flakyProvider) SetProps(ctx context.Context, props pr.Props) error {
	if p.setPropsErr != nil {
		return p.setPropsErr
	}
	return p.Memory.SetProps(ctx, props)
}

func (p *flakyProvider) Fetch(ctx context.Context, key string, o pr.FetchOptions) (*pr.Object, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.Memory.Fetch(ctx, key, o)
}

func (p *flakyProvider) Store(ctx context.Context, obj *pr.Object, o pr.StoreOptions) error {
	if p.storeErr != nil {
		return p.storeErr
	}
	return p.Memory.Store(ctx, obj, o)
}

func (p *flakyProvider) Delete(ctx context.Context, key string) error {
	if p.deleteErr != nil {
		return p.deleteErr
	}
	if p.failDelete[key] {
		return errors.New("delete refused")
	}
	return p.Memory.Delete(ctx, key)
}

func (p *flakyProvider) Keys(ctx context.Context, fn pr.KeysFunc) error {
	err := p.Memory.Keys(ctx, fn)
	if p.keysErr != nil {
		return p.keysErr
	}
	return err
}

type user struct {
	UserID int `json:"user_id"`
}

type fixture struct {
	clock *fakeClock
	mem   *memory.Memory
	log   *recLogger
	hooks *recHooks
	store Store[user]
}

func newFixture(t *testing.T, p pr.Provider, mem *memory.Memory, clock *fakeClock, optsOpt func(*Options[user])) *fixture {
	t.Helper()
	f := &fixture{clock: clock, mem: mem, log: &recLogger{}, hooks: &recHooks{}}
	opts := Options[user]{
		Provider: p,
		Codec:    c.JSON[user]{},
		Logger:   f.log,
		Hooks:    f.hooks,
		Now:      clock.Now,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := New[user](context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.store = s
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return f
}

func newMemFixture(t *testing.T, optsOpt func(*Options[user])) *fixture {
	t.Helper()
	clock := newClock()
	mem := memory.New(memory.Config{Now: clock.Now})
	return newFixture(t, mem, mem, clock, optsOpt)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyProvider) {
	t.Helper()
	clock := newClock()
	mem := memory.New(memory.Config{Now: clock.Now})
	fp := &flakyProvider{Memory: mem, failDelete: map[string]bool{}}
	return newFixture(t, fp, mem, clock, nil), fp
}

func mustImpl[V any](t *testing.T, s Store[V]) *store[V] {
	t.Helper()
	impl, ok := s.(*store[V])
	if !ok {
		t.Fatalf("unexpected concrete type for Store")
	}
	return impl
}

// waitLazyDeletes blocks until background deletes of expired entries finish.
func waitLazyDeletes[V any](t *testing.T, s Store[V]) {
	t.Helper()
	mustImpl(t, s).pending.Wait()
}

// ==============================
// Construction
// ==============================

func TestNewRequiresProviderAndCodec(t *testing.T) {
	ctx := context.Background()
	if _, err := New[user](ctx, Options[user]{Codec: c.JSON[user]{}}); err == nil {
		t.Fatalf("expected error without provider")
	}
	if _, err := New[user](ctx, Options[user]{Provider: memory.New(memory.Config{})}); err == nil {
		t.Fatalf("expected error without codec")
	}
	if _, err := New[user](ctx, Options[user]{
		Provider:   memory.New(memory.Config{}),
		Codec:      c.JSON[user]{},
		DefaultTTL: -time.Second,
	}); err == nil {
		t.Fatalf("expected error on negative default TTL")
	}
}

func TestNewDisablesDivergence(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	mem := memory.New(memory.Config{Now: clock.Now, Props: pr.Props{AllowMult: true, LastWriteWins: true}})
	f := newFixture(t, mem, mem, clock, nil)

	props, _ := mem.Props(ctx)
	if props.AllowMult {
		t.Fatalf("allow_mult still enabled after New")
	}
	if !props.LastWriteWins {
		t.Fatalf("unrelated bucket props must be preserved")
	}
	if f.hooks.divergence != 1 {
		t.Fatalf("DivergenceDisabled hook calls = %d", f.hooks.divergence)
	}
	if f.log.count("warn") != 1 {
		t.Fatalf("expected one warning about divergence")
	}
}

func TestNewLeavesCleanBucketAlone(t *testing.T) {
	f := newMemFixture(t, nil)
	if f.hooks.divergence != 0 || f.log.count("warn") != 0 {
		t.Fatalf("no repair expected on a bucket without siblings")
	}
}

func TestNewConfigurationErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("unreachable")

	fp := &flakyProvider{Memory: memory.New(memory.Config{}), propsErr: boom}
	_, err := New[user](ctx, Options[user]{Provider: fp, Codec: c.JSON[user]{}})
	var ce *ConfigurationError
	if !errors.As(err, &ce) || !errors.Is(err, boom) || ce.FetchErr == nil {
		t.Fatalf("expected ConfigurationError wrapping fetch failure, got %v", err)
	}

	fp = &flakyProvider{
		Memory:      memory.New(memory.Config{Props: pr.Props{AllowMult: true}}),
		setPropsErr: boom,
	}
	_, err = New[user](ctx, Options[user]{Provider: fp, Codec: c.JSON[user]{}})
	if !errors.As(err, &ce) || ce.StoreErr == nil || !errors.Is(err, boom) {
		t.Fatalf("expected ConfigurationError wrapping store failure, got %v", err)
	}

	// skipping the check must not touch props at all
	fp = &flakyProvider{Memory: memory.New(memory.Config{}), propsErr: boom}
	if _, err := New[user](ctx, Options[user]{Provider: fp, Codec: c.JSON[user]{}, SkipDivergenceCheck: true}); err != nil {
		t.Fatalf("SkipDivergenceCheck: %v", err)
	}
}

// ==============================
// Read / Write
// ==============================

func TestReadMissDoesNotLog(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	for _, k := range []string{"nope", "a/b", "100%"} {
		if v, ok := f.store.Read(ctx, k); ok {
			t.Fatalf("Read(%q) hit on empty bucket: %v", k, v)
		}
		if r := f.store.Fetch(ctx, k); r.Status != StatusMiss || r.Err != nil {
			t.Fatalf("Fetch(%q) = %+v, want clean miss", k, r)
		}
	}
	if n := f.log.count("error"); n != 0 {
		t.Fatalf("misses must not log errors, got %d", n)
	}
}

func TestWriteWithoutTTLNeverExpires(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	if !f.store.Write(ctx, "k", user{UserID: 1}) {
		t.Fatalf("Write failed")
	}
	f.clock.Advance(10 * 365 * 24 * time.Hour)
	if v, ok := f.store.Read(ctx, "k"); !ok || v.UserID != 1 {
		t.Fatalf("entry without TTL expired: ok=%v v=%v", ok, v)
	}
}

func TestWriteStoresEntryShape(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	if !f.store.Write(ctx, "views/users 1", user{UserID: 3}, ExpiresIn(1500*time.Millisecond)) {
		t.Fatalf("Write failed")
	}
	obj, err := f.mem.Fetch(ctx, "views%2Fusers%201", pr.FetchOptions{})
	if err != nil {
		t.Fatalf("entry not stored under escaped key: %v", err)
	}
	if obj.ContentType != "application/octet-stream" {
		t.Fatalf("content type = %q", obj.ContentType)
	}
	if obj.Meta[metaSerialization] != "json" {
		t.Fatalf("serialization meta = %q", obj.Meta[metaSerialization])
	}
	at, err := http.ParseTime(obj.Meta[metaExpiresAt])
	if err != nil {
		t.Fatalf("expires-at not an HTTP date: %q", obj.Meta[metaExpiresAt])
	}
	// 10:00:01.5 rounds up to 10:00:02
	if want := f.clock.Now().Add(2 * time.Second); !at.Equal(want) {
		t.Fatalf("expires-at = %v, want %v", at, want)
	}
	if string(obj.Value) != `{"user_id":3}` {
		t.Fatalf("payload = %s", obj.Value)
	}
}

func TestWriteWithoutTTLHasNoExpiryMeta(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()
	f.store.Write(ctx, "k", user{})
	obj, _ := f.mem.Fetch(ctx, "k", pr.FetchOptions{})
	if _, ok := obj.Meta[metaExpiresAt]; ok {
		t.Fatalf("unexpected expires-at without TTL")
	}
}

func TestOverwriteReplaces(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	f.store.Write(ctx, "k", user{UserID: 1}, ExpiresIn(time.Second))
	f.store.Write(ctx, "k", user{UserID: 2})
	f.clock.Advance(time.Hour)
	if v, ok := f.store.Read(ctx, "k"); !ok || v.UserID != 2 {
		t.Fatalf("overwrite should replace value and expiry: ok=%v v=%v", ok, v)
	}
}

func TestExpiresInLifecycle(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	f.store.Write(ctx, "k", user{UserID: 9}, ExpiresIn(30*time.Second))
	f.clock.Advance(29 * time.Second)
	if _, ok := f.store.Read(ctx, "k"); !ok {
		t.Fatalf("entry expired early")
	}
	f.clock.Advance(2 * time.Second)
	if _, ok := f.store.Read(ctx, "k"); ok {
		t.Fatalf("entry should have expired")
	}
	waitLazyDeletes(t, f.store)

	if f.store.Exist(ctx, "k") {
		t.Fatalf("expired entry should be deleted by the read")
	}
	if len(f.hooks.expired) != 1 || f.hooks.expired[0] != "k" {
		t.Fatalf("ExpiredOnRead hook = %v", f.hooks.expired)
	}
}

func TestDefaultTTLUsesLastModified(t *testing.T) {
	clock := newClock()
	mem := memory.New(memory.Config{Now: clock.Now})
	ctx := context.Background()

	// written by a store without a default TTL: no expires-at
	plain := newFixture(t, mem, mem, clock, nil)
	plain.store.Write(ctx, "k", user{UserID: 5})

	withTTL := newFixture(t, mem, mem, clock, func(o *Options[user]) { o.DefaultTTL = time.Minute })
	clock.Advance(59 * time.Second)
	if _, ok := withTTL.store.Read(ctx, "k"); !ok {
		t.Fatalf("default TTL applied too early")
	}
	clock.Advance(2 * time.Second)

	// a call-level override wins over the default
	if _, ok := withTTL.store.Read(ctx, "k", ExpiresIn(time.Hour)); !ok {
		t.Fatalf("ExpiresIn on read should override DefaultTTL")
	}
	if _, ok := withTTL.store.Read(ctx, "k"); ok {
		t.Fatalf("default TTL measured from last-modified should have expired the entry")
	}
	waitLazyDeletes(t, withTTL.store)
	if mem.Len() != 0 {
		t.Fatalf("expired entry not deleted")
	}
}

func TestDefaultTTLStampsWrites(t *testing.T) {
	f := newMemFixture(t, func(o *Options[user]) { o.DefaultTTL = 10 * time.Second })
	ctx := context.Background()

	f.store.Write(ctx, "default", user{})
	f.store.Write(ctx, "forever", user{}, ExpiresIn(-1))
	f.clock.Advance(11 * time.Second)

	if _, ok := f.store.Read(ctx, "default"); ok {
		t.Fatalf("write should inherit DefaultTTL")
	}
	obj, err := f.mem.Fetch(ctx, "forever", pr.FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := obj.Meta[metaExpiresAt]; ok {
		t.Fatalf("negative ExpiresIn must disable absolute expiry")
	}
}

func TestDecodeFailureIsMissWithError(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	_ = f.mem.Store(ctx, &pr.Object{Key: "bad", Value: []byte("not json")}, pr.StoreOptions{})
	r := f.store.Fetch(ctx, "bad")
	if r.Status != StatusMiss || r.Err == nil {
		t.Fatalf("Fetch on undecodable payload = %+v", r)
	}
	if IsUnavailable(r.Err) {
		t.Fatalf("decode failure is not a store outage")
	}
	if f.mem.Len() != 1 {
		t.Fatalf("undecodable entry must be left in place")
	}
}

// ==============================
// Delete / Exist
// ==============================

func TestExistAndDelete(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	if f.store.Exist(ctx, "k") {
		t.Fatalf("Exist on empty bucket")
	}
	f.store.Write(ctx, "k", user{UserID: 1})
	if !f.store.Exist(ctx, "k") {
		t.Fatalf("Exist false right after Write")
	}
	if !f.store.Delete(ctx, "k") {
		t.Fatalf("Delete failed")
	}
	if f.store.Exist(ctx, "k") {
		t.Fatalf("Exist true after Delete")
	}
	if !f.store.Delete(ctx, "k") {
		t.Fatalf("deleting a missing key is not an error")
	}
	if f.log.count("error") != 0 {
		t.Fatalf("no errors expected")
	}
}

func TestExistIgnoresExpiry(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	f.store.Write(ctx, "k", user{}, ExpiresIn(time.Second))
	f.clock.Advance(time.Minute)
	if !f.store.Exist(ctx, "k") {
		t.Fatalf("Exist must not consult expiry")
	}
	if f.store.Probe(ctx, "k") != StatusHit {
		t.Fatalf("Probe must not consult expiry")
	}
}

// ==============================
// DeleteMatched
// ==============================

func TestDeleteMatchedRemovesExactlyMatchingKeys(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	all := []string{"views/users/1", "views/users/2", "views/posts/1", "session:1", "session:2", "100% done"}
	for i, k := range all {
		f.store.Write(ctx, k, user{UserID: i})
	}

	re := regexp.MustCompile(`^views/users/`)
	if n := f.store.DeleteMatched(ctx, re); n != 2 {
		t.Fatalf("DeleteMatched deleted %d, want 2", n)
	}

	var left []string
	_ = f.mem.Keys(ctx, func(ks []string) error {
		for _, k := range ks {
			left = append(left, keys.Unescape(k))
		}
		return nil
	})
	sort.Strings(left)
	want := []string{"100% done", "session:1", "session:2", "views/posts/1"}
	if fmt.Sprint(left) != fmt.Sprint(want) {
		t.Fatalf("remaining keys = %v, want %v", left, want)
	}
	if len(f.hooks.matchedRuns) != 1 || f.hooks.matchedRuns[0] != [2]int{6, 2} {
		t.Fatalf("MatchedDeleted hook = %v", f.hooks.matchedRuns)
	}
}

func TestDeleteMatchedHelpers(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	for _, k := range []string{"session:1", "session:22", "sessions", "views/a/b", "views/c"} {
		f.store.Write(ctx, k, user{})
	}

	g, err := Glob("session:?")
	if err != nil {
		t.Fatal(err)
	}
	if n := f.store.DeleteMatched(ctx, g); n != 1 {
		t.Fatalf("glob deleted %d, want 1", n)
	}

	g, err = Glob("views/*", '/')
	if err != nil {
		t.Fatal(err)
	}
	if n := f.store.DeleteMatched(ctx, g); n != 1 {
		t.Fatalf("separator-aware glob deleted %d, want 1 (views/c)", n)
	}

	if n := f.store.DeleteMatched(ctx, Prefix("session")); n != 2 {
		t.Fatalf("prefix deleted %d, want 2", n)
	}

	if _, err := Regexp("("); err == nil {
		t.Fatalf("invalid regexp should fail to compile")
	}
	if n := f.store.DeleteMatched(ctx, nil); n != 0 {
		t.Fatalf("nil matcher deleted %d", n)
	}
	if f.mem.Len() != 1 {
		t.Fatalf("expected only views/a/b left, have %d", f.mem.Len())
	}
}

func TestDeleteMatchedContinuesPastFailures(t *testing.T) {
	f, fp := newFlakyFixture(t)
	ctx := context.Background()

	for _, k := range []string{"a1", "a2", "a3", "b1"} {
		f.store.Write(ctx, k, user{})
	}
	fp.failDelete["a2"] = true

	if n := f.store.DeleteMatched(ctx, Prefix("a")); n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	if !f.store.Exist(ctx, "a2") || !f.store.Exist(ctx, "b1") {
		t.Fatalf("failed and non-matching keys must remain")
	}
	if f.log.count("error") != 1 {
		t.Fatalf("per-key failure should be logged once, got %d", f.log.count("error"))
	}
}

func TestDeleteMatchedEnumerationFailure(t *testing.T) {
	f, fp := newFlakyFixture(t)
	ctx := context.Background()

	f.store.Write(ctx, "a", user{})
	fp.keysErr = errors.New("list keys timeout")

	// the key seen before the failure is still deleted
	if n := f.store.DeleteMatched(ctx, Prefix("a")); n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	if f.log.count("error") != 1 {
		t.Fatalf("enumeration failure should be logged")
	}
}

// ==============================
// Fail-soft behavior
// ==============================

func TestDeleteMatchedNilMatcher(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()
	f.store.Write(ctx, "a", user{})

	var re *regexp.Regexp
	var fn MatchFunc
	for _, m := range []Matcher{nil, re, fn} {
		if n := f.store.DeleteMatched(ctx, m); n != 0 {
			t.Fatalf("nil matcher %T deleted %d", m, n)
		}
	}
	if !f.store.Exist(ctx, "a") {
		t.Fatalf("nil matcher must not delete anything")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	if f.store.Write(ctx, "", user{UserID: 1}) {
		t.Fatalf("Write with empty key should fail")
	}
	if err := f.store.Put(ctx, "", user{}); !errors.Is(err, ErrEmptyKey) || IsUnavailable(err) {
		t.Fatalf("Put err = %v", err)
	}
	if f.mem.Len() != 0 {
		t.Fatalf("empty key reached the provider")
	}
	r := f.store.Fetch(ctx, "")
	if r.Status != StatusMiss || !errors.Is(r.Err, ErrEmptyKey) {
		t.Fatalf("Fetch = %+v", r)
	}
	if err := f.store.Remove(ctx, ""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("Remove err = %v", err)
	}
	if st := f.store.Probe(ctx, ""); st != StatusMiss {
		t.Fatalf("Probe = %v", st)
	}
	if len(f.hooks.storeErrs) != 0 || f.log.count("error") != 0 {
		t.Fatalf("rejected keys are not store failures: hooks=%v", f.hooks.storeErrs)
	}
	if f.log.count("warn") != 5 {
		t.Fatalf("expected 5 warnings, got %d", f.log.count("warn"))
	}
}

func TestStoreFailuresAreContained(t *testing.T) {
	f, fp := newFlakyFixture(t)
	ctx := context.Background()
	f.store.Write(ctx, "k", user{UserID: 1})

	boom := errors.New("quorum not met")
	fp.fetchErr, fp.storeErr, fp.deleteErr = boom, boom, boom

	if _, ok := f.store.Read(ctx, "k"); ok {
		t.Fatalf("Read should miss on store failure")
	}
	if f.store.Write(ctx, "k", user{}) {
		t.Fatalf("Write should report failure")
	}
	if f.store.Delete(ctx, "k") {
		t.Fatalf("Delete should report failure")
	}
	if f.store.Exist(ctx, "k") {
		t.Fatalf("Exist should be false on store failure")
	}
	if got := f.log.count("error"); got != 4 {
		t.Fatalf("expected 4 logged errors, got %d", got)
	}
	want := []string{"read", "write", "delete", "exist"}
	if fmt.Sprint(f.hooks.storeErrs) != fmt.Sprint(want) {
		t.Fatalf("StoreError hook ops = %v, want %v", f.hooks.storeErrs, want)
	}
}

func TestExplicitFormsExposeFailures(t *testing.T) {
	f, fp := newFlakyFixture(t)
	ctx := context.Background()

	boom := errors.New("connection refused")
	fp.fetchErr, fp.storeErr, fp.deleteErr = boom, boom, boom

	r := f.store.Fetch(ctx, "k")
	if r.Status != StatusUnavailable || !errors.Is(r.Err, boom) || !IsUnavailable(r.Err) {
		t.Fatalf("Fetch = %+v", r)
	}
	var se *StoreError
	if err := f.store.Put(ctx, "k", user{}); !errors.As(err, &se) || se.Op != "write" || se.Key != "k" {
		t.Fatalf("Put err = %v", err)
	}
	if err := f.store.Remove(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("Remove err = %v", err)
	}
	if st := f.store.Probe(ctx, "k"); st != StatusUnavailable {
		t.Fatalf("Probe = %v, want unavailable", st)
	}
}

func TestExpiredDeleteFailureIsLogged(t *testing.T) {
	f, fp := newFlakyFixture(t)
	ctx := context.Background()

	f.store.Write(ctx, "k", user{}, ExpiresIn(time.Second))
	f.clock.Advance(time.Minute)
	fp.deleteErr = errors.New("down")

	if _, ok := f.store.Read(ctx, "k"); ok {
		t.Fatalf("expired read must miss even when delete fails")
	}
	waitLazyDeletes(t, f.store)
	if f.log.count("error") != 1 {
		t.Fatalf("failed lazy delete should be logged")
	}
}

func TestLazyDeleteSurvivesCanceledContext(t *testing.T) {
	f := newMemFixture(t, nil)
	f.store.Write(context.Background(), "k", user{}, ExpiresIn(time.Second))
	f.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := f.store.Read(ctx, "k"); ok {
		t.Fatalf("expected miss")
	}
	cancel()
	waitLazyDeletes(t, f.store)
	if f.mem.Len() != 0 {
		t.Fatalf("lazy delete should not depend on the caller's context")
	}
}

// ==============================
// Scenario
// ==============================

func TestSessionScenario(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	if !f.store.Write(ctx, "session:42", user{UserID: 7}, ExpiresIn(60*time.Second)) {
		t.Fatalf("Write failed")
	}
	if v, ok := f.store.Read(ctx, "session:42"); !ok || v.UserID != 7 {
		t.Fatalf("immediate read: ok=%v v=%v", ok, v)
	}
	f.clock.Advance(61 * time.Second)
	if _, ok := f.store.Read(ctx, "session:42"); ok {
		t.Fatalf("read after expiry should miss")
	}
	waitLazyDeletes(t, f.store)
	if f.store.Exist(ctx, "session:42") {
		t.Fatalf("existence check after expired read should be false")
	}
}

func TestConcurrentAccess(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 100; j++ {
				f.store.Write(ctx, k, user{UserID: j})
				f.store.Read(ctx, k)
				f.store.Exist(ctx, k)
			}
		}(i)
	}
	wg.Wait()
	if f.log.count("error") != 0 {
		t.Fatalf("unexpected errors under concurrency")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newMemFixture(t, nil)
	ctx := context.Background()
	if err := f.store.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Close(ctx); err != nil {
		t.Fatal(err)
	}
}
