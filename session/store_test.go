package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, ""), rdb, mr
}

func testSession(id string, loginAt time.Time) *Session {
	return &Session{
		SessionID:    id,
		Identity:     "ada@example.com",
		Role:         "USER",
		Device:       "Chrome on macOS",
		IP:           "203.0.113.7",
		UserAgent:    "Mozilla/5.0",
		LoginAt:      loginAt,
		LastActiveAt: loginAt,
	}
}

func TestSaveUsesRoleIdentityKeyLayout(t *testing.T) {
	store, rdb, mr := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-1", time.Now().UTC())

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	key := "session:USER:ada@example.com:sid-1"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q, have %v", key, mr.Keys())
	}
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)

	_, err := store.Get(context.Background(), "USER", "ada@example.com", "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetCorruptBlob(t *testing.T) {
	store, rdb, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := rdb.Set(ctx, store.Key("USER", "ada@example.com", "bad"), "not-json", time.Hour).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.Get(ctx, "USER", "ada@example.com", "bad")
	if !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected ErrSessionCorrupt, got %v", err)
	}
}

func TestListIsScopedAndSortedNewestFirst(t *testing.T) {
	store, rdb, _ := newSessionStoreTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testSession(id, base.Add(time.Duration(i)*time.Minute)), time.Hour); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	other := testSession("x", base)
	other.Role = "ADMIN"
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("save other role: %v", err)
	}
	// Prefix sibling: identity that starts with the same characters.
	sibling := testSession("y", base)
	sibling.Identity = "ada@example.com.au"
	if err := store.Save(ctx, sibling, time.Hour); err != nil {
		t.Fatalf("save sibling: %v", err)
	}
	if err := rdb.Set(ctx, store.Key("USER", "ada@example.com", "corrupt"), "{}", time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}

	list, err := store.List(ctx, "USER", "ada@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	want := []string{"c", "b", "a"}
	for i, sess := range list {
		if sess.SessionID != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], sess.SessionID)
		}
	}
}

func TestListEmptyIsNonNil(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)

	list, err := store.List(context.Background(), "USER", "nobody@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", list)
	}
}

func TestExpiredSessionsDisappear(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("short", time.Now()), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	ok, err := store.Exists(ctx, "USER", "ada@example.com", "short")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("expected expired session to be gone")
	}
	n, err := store.Count(ctx, "USER", "ada@example.com")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected count 0, got %d", n)
	}
}

func TestTouchExtendsTTLWithoutRewrite(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()
	login := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, testSession("sid", login), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(50 * time.Second)

	ok, err := store.Touch(ctx, "USER", "ada@example.com", "sid", time.Minute)
	if err != nil || !ok {
		t.Fatalf("touch: ok=%v err=%v", ok, err)
	}
	mr.FastForward(50 * time.Second)

	sess, err := store.Get(ctx, "USER", "ada@example.com", "sid")
	if err != nil {
		t.Fatalf("get after touch: %v", err)
	}
	if !sess.LastActiveAt.Equal(login) {
		t.Fatalf("touch rewrote LastActiveAt: %v", sess.LastActiveAt)
	}

	ok, err = store.Touch(ctx, "USER", "ada@example.com", "missing", time.Minute)
	if err != nil {
		t.Fatalf("touch missing: %v", err)
	}
	if ok {
		t.Fatal("expected touch on missing session to report false")
	}
}

func TestTouchAndStampRewritesLastActive(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	login := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := login.Add(3 * time.Hour)

	if err := store.Save(ctx, testSession("sid", login), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err := store.TouchAndStamp(ctx, "USER", "ada@example.com", "sid", time.Hour, later)
	if err != nil || !ok {
		t.Fatalf("touch and stamp: ok=%v err=%v", ok, err)
	}

	sess, err := store.Get(ctx, "USER", "ada@example.com", "sid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !sess.LastActiveAt.Equal(later) {
		t.Fatalf("expected LastActiveAt %v, got %v", later, sess.LastActiveAt)
	}
	if !sess.LoginAt.Equal(login) {
		t.Fatalf("LoginAt changed: %v", sess.LoginAt)
	}

	ok, err = store.TouchAndStamp(ctx, "USER", "ada@example.com", "missing", time.Hour, later)
	if err != nil || ok {
		t.Fatalf("expected (false, nil) for missing session, got (%v, %v)", ok, err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid", time.Now()), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	deleted, err := store.Delete(ctx, "USER", "ada@example.com", "sid")
	if err != nil || !deleted {
		t.Fatalf("first delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "USER", "ada@example.com", "sid")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete should report nothing removed")
	}
}

func TestDeleteAllOnlyTouchesOneIdentity(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Save(ctx, testSession(fmt.Sprintf("s%d", i), time.Now()), time.Hour); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	keep := testSession("keep", time.Now())
	keep.Identity = "grace@example.com"
	if err := store.Save(ctx, keep, time.Hour); err != nil {
		t.Fatalf("save keep: %v", err)
	}

	n, err := store.DeleteAll(ctx, "USER", "ada@example.com")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 deleted, got %d", n)
	}

	n, err = store.DeleteAll(ctx, "USER", "ada@example.com")
	if err != nil || n != 0 {
		t.Fatalf("second delete all: n=%d err=%v", n, err)
	}

	ok, err := store.Exists(ctx, "USER", "grace@example.com", "keep")
	if err != nil || !ok {
		t.Fatalf("other identity affected: ok=%v err=%v", ok, err)
	}
}

func TestSaveIfBelowEnforcesLimit(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		saved, live, err := store.SaveIfBelow(ctx, testSession(fmt.Sprintf("s%d", i), time.Now()), time.Hour, 2)
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		if !saved || live != i+1 {
			t.Fatalf("save %d: saved=%v live=%d", i, saved, live)
		}
	}

	saved, live, err := store.SaveIfBelow(ctx, testSession("s2", time.Now()), time.Hour, 2)
	if err != nil {
		t.Fatalf("third save: %v", err)
	}
	if saved || live != 2 {
		t.Fatalf("expected rejection at limit, saved=%v live=%d", saved, live)
	}
	if ok, _ := store.Exists(ctx, "USER", "ada@example.com", "s2"); ok {
		t.Fatal("rejected session must not be persisted")
	}

	if _, err := store.Delete(ctx, "USER", "ada@example.com", "s0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	saved, _, err = store.SaveIfBelow(ctx, testSession("s2", time.Now()), time.Hour, 2)
	if err != nil || !saved {
		t.Fatalf("save after delete: saved=%v err=%v", saved, err)
	}
}

func TestSaveIfBelowPrunesExpiredMembers(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.SaveIfBelow(ctx, testSession("old", time.Now()), time.Minute, 1); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if _, _, err := store.SaveIfBelow(ctx, testSession("fresh", time.Now()), 2*time.Hour, 2); err != nil {
		t.Fatalf("save fresh: %v", err)
	}
	mr.FastForward(5 * time.Minute)

	saved, live, err := store.SaveIfBelow(ctx, testSession("new", time.Now()), time.Hour, 2)
	if err != nil {
		t.Fatalf("save new: %v", err)
	}
	if !saved || live != 2 {
		t.Fatalf("expected expired member pruned, saved=%v live=%d", saved, live)
	}
}

func TestTouchKeepsLimitIndexAlive(t *testing.T) {
	for _, stamp := range []bool{false, true} {
		t.Run(fmt.Sprintf("stamp=%v", stamp), func(t *testing.T) {
			store, _, mr := newSessionStoreTest(t)
			ctx := context.Background()
			const ttl = 10 * time.Second

			if saved, _, err := store.SaveIfBelow(ctx, testSession("s1", time.Now()), ttl, 1); err != nil || !saved {
				t.Fatalf("first save: saved=%v err=%v", saved, err)
			}
			mr.FastForward(6 * time.Second)

			var ok bool
			var err error
			if stamp {
				ok, err = store.TouchAndStamp(ctx, "USER", "ada@example.com", "s1", ttl, time.Now())
			} else {
				ok, err = store.Touch(ctx, "USER", "ada@example.com", "s1", ttl)
			}
			if err != nil || !ok {
				t.Fatalf("touch: ok=%v err=%v", ok, err)
			}
			mr.FastForward(6 * time.Second)

			saved, live, err := store.SaveIfBelow(ctx, testSession("s2", time.Now()), ttl, 1)
			if err != nil {
				t.Fatalf("second save: %v", err)
			}
			if saved || live != 1 {
				t.Fatalf("touched session must still count, saved=%v live=%d", saved, live)
			}
			if n, _ := store.Count(ctx, "USER", "ada@example.com"); n != 1 {
				t.Fatalf("expected 1 session, got %d", n)
			}
		})
	}
}

func TestTouchMissingSessionLeavesIndex(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.SaveIfBelow(ctx, testSession("s1", time.Now()), time.Minute, 2); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err := store.Touch(ctx, "USER", "ada@example.com", "ghost", time.Hour)
	if err != nil || ok {
		t.Fatalf("expected no-op touch, ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL(store.indexKey("USER", "ada@example.com")); ttl > time.Minute {
		t.Fatalf("index ttl must not grow for a missing session, got %v", ttl)
	}
}

func TestSaveIfBelowConcurrentNeverOvershoots(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	const limit = 3

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = store.SaveIfBelow(ctx, testSession(fmt.Sprintf("c%d", i), time.Now()), time.Hour, limit)
		}(i)
	}
	wg.Wait()

	n, err := store.Count(ctx, "USER", "ada@example.com")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != limit {
		t.Fatalf("expected exactly %d sessions, got %d", limit, n)
	}
}

func TestStoreWrapsTransportErrors(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	mr.Close()

	_, err := store.Exists(context.Background(), "USER", "ada@example.com", "sid")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	cases := map[string]string{
		"plain@example.com": "plain@example.com",
		"we*ird?[x]":        `we\*ird\?\[x\]`,
	}
	for in, want := range cases {
		if got := escapeGlob(in); got != want {
			t.Fatalf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}
