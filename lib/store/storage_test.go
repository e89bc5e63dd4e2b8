package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore/codec"
)

// fixture are the records loaded before every storage test
var fixture = []struct {
	key   any
	value any
}{
	{1, "Honoka Kosaka"},
	{2, "Eli Ayase"},
	{3, "Kotori Minami"},
	{4, "Umi Sonoda"},
	{5, "Rin Hoshizora"},
	{6, "Maki Nishikino"},
	{7, "Nozomi Tojo"},
	{8, "Hanayo Koizumi"},
	{9, "Nico Yazawa"},
}

// forEachEngine runs fn against a loaded namespace of every engine
func forEachEngine(t *testing.T, fn func(t *testing.T, s *Storage)) {
	for name, newDriver := range engines {
		t.Run(name, func(t *testing.T) {
			a := newConnected(t, newDriver(time.Now), Config{})
			s := mustStorage(t, a, "user")
			for _, rec := range fixture {
				if err := s.Set(context.Background(), rec.key, rec.value).Err(); err != nil {
					t.Fatalf("loading fixture failed: %v", err)
				}
			}
			fn(t, s)
		})
	}
}

func TestFixtureScenario(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()

		if n, err := s.Count(ctx).Result(); err != nil || n != 9 {
			t.Fatalf("Expected count 9, got %d (%v)", n, err)
		}
		if v, err := s.Get(ctx, 1).Result(); err != nil || v != "Honoka Kosaka" {
			t.Fatalf("Expected 'Honoka Kosaka', got %v (%v)", v, err)
		}
		if err := s.Remove(ctx, 1).Err(); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if v, err := s.Get(ctx, 1).Result(); err != nil || v != nil {
			t.Fatalf("Expected nil after remove, got %v (%v)", v, err)
		}
		if n, err := s.Count(ctx).Result(); err != nil || n != 8 {
			t.Fatalf("Expected count 8, got %d (%v)", n, err)
		}
	})
}

func TestGetMissing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		v, err := s.Get(context.Background(), "no-such-key").Result()
		if err != nil {
			t.Fatalf("Expected miss not to be an error, got %v", err)
		}
		if v != nil {
			t.Errorf("Expected nil for a miss, got %v", v)
		}
	})
}

func TestSetRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		key   any
		value any
	}{
		{"string key", "name", "Honoka Kosaka"},
		{"int key", 10, "Eli Ayase"},
		{"int value", "age", 16},
		{"bool value", "active", true},
		{"empty string", "empty", ""},
	}

	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := s.Set(ctx, tt.key, tt.value).Err(); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
				v, err := s.Get(ctx, tt.key).Result()
				if err != nil {
					t.Fatalf("Get failed: %v", err)
				}
				if fmt.Sprint(v) != fmt.Sprint(tt.value) {
					t.Errorf("Expected %v, got %v (%T)", tt.value, v, v)
				}
			})
		}
	})
}

func TestSetOverwrite(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()

		if err := s.Set(ctx, 3, "Kotori").Err(); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if v, _ := s.Get(ctx, 3).Result(); v != "Kotori" {
			t.Errorf("Expected overwritten value, got %v", v)
		}
		if n, _ := s.Count(ctx).Result(); n != 9 {
			t.Errorf("Expected overwrite not to add a record, got count %d", n)
		}
	})
}

func TestSetNewKey(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()

		if err := s.Set(ctx, 10, "Yukiho Kosaka").Err(); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if n, _ := s.Count(ctx).Result(); n != 10 {
			t.Errorf("Expected count 10, got %d", n)
		}
	})
}

func TestRemoveIdempotent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if err := s.Remove(ctx, 2).Err(); err != nil {
				t.Fatalf("Remove #%d failed: %v", i+1, err)
			}
		}
		if err := s.Remove(ctx, "never-stored").Err(); err != nil {
			t.Fatalf("Remove of a missing key failed: %v", err)
		}
		if n, _ := s.Count(ctx).Result(); n != 8 {
			t.Errorf("Expected count 8, got %d", n)
		}
	})
}

func TestNumericKeysCompareByValue(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()

		// the fixture stores key 1 as an int, the CLI passes int64
		for _, key := range []any{int64(1), int32(1), 1.0} {
			if v, err := s.Get(ctx, key).Result(); err != nil || v != "Honoka Kosaka" {
				t.Errorf("Get(%T(%v)) = %v (%v), want 'Honoka Kosaka'", key, key, v, err)
			}
		}

		if err := s.Set(ctx, int64(2), "Eli").Err(); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if v, _ := s.Get(ctx, 2).Result(); v != "Eli" {
			t.Errorf("Expected int64 key to overwrite the int key, got %v", v)
		}
		if n, _ := s.Count(ctx).Result(); n != 9 {
			t.Errorf("Expected no new record, got count %d", n)
		}
	})
}

func TestMapKeysRejected(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()
		key := map[string]any{"a": 1, "b": 2}

		if err := s.Set(ctx, key, "v").Err(); !errors.Is(err, ErrStore) || !errors.Is(err, codec.ErrUnsupportedKey) {
			t.Errorf("Expected ErrStore wrapping ErrUnsupportedKey on Set, got %v", err)
		}
		if _, err := s.Get(ctx, key).Result(); !errors.Is(err, codec.ErrUnsupportedKey) {
			t.Errorf("Expected ErrUnsupportedKey on Get, got %v", err)
		}
	})
}

func TestCallbacksAgreeWithFutures(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()

		type outcome struct {
			err    error
			result any
		}

		// count
		countCh := make(chan outcome, 1)
		n, err := s.Count(ctx, func(err error, n int64) { countCh <- outcome{err, n} }).Result()
		if got := <-countCh; got.err != err || got.result != n {
			t.Errorf("count: callback (%v, %v) != future (%v, %v)", got.err, got.result, err, n)
		}

		// get hit and miss
		for _, key := range []any{4, "missing"} {
			getCh := make(chan outcome, 1)
			v, err := s.Get(ctx, key, func(err error, v any) { getCh <- outcome{err, v} }).Result()
			if got := <-getCh; got.err != err || got.result != v {
				t.Errorf("get %v: callback (%v, %v) != future (%v, %v)", key, got.err, got.result, err, v)
			}
		}

		// set and remove
		setCh := make(chan error, 1)
		err = s.Set(ctx, "cb", "value", func(err error, _ Void) { setCh <- err }).Err()
		if got := <-setCh; got != err {
			t.Errorf("set: callback %v != future %v", got, err)
		}
		removeCh := make(chan error, 1)
		err = s.Remove(ctx, "cb", func(err error, _ Void) { removeCh <- err }).Err()
		if got := <-removeCh; got != err {
			t.Errorf("remove: callback %v != future %v", got, err)
		}
	})
}

func TestCallbacksOnFailure(t *testing.T) {
	a := newConnected(t, engines["memory"](time.Now), Config{})
	s := mustStorage(t, a, "user")
	if err := a.Disconnect(context.Background()).Err(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	ctx := context.Background()
	getCh := make(chan any, 1)
	v, err := s.Get(ctx, 1, func(err error, v any) {
		if err == nil {
			t.Errorf("Expected callback to receive the error")
		}
		getCh <- v
	}).Result()

	if !errors.Is(err, ErrStore) {
		t.Errorf("Expected ErrStore, got %v", err)
	}
	if v != nil {
		t.Errorf("Expected nil result on failure, got %v", v)
	}
	if got := <-getCh; got != nil {
		t.Errorf("Expected callback result to be nil on failure, got %v", got)
	}

	countCh := make(chan int64, 1)
	n, err := s.Count(ctx, func(_ error, n int64) { countCh <- n }).Result()
	if !errors.Is(err, ErrStore) || n != 0 || <-countCh != 0 {
		t.Errorf("Expected zero count with ErrStore, got %d (%v)", n, err)
	}
}

func TestMultipleCallbacks(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		var mu sync.Mutex
		calls := map[string]int{}
		var wg sync.WaitGroup
		wg.Add(2)

		cb := func(name string) Callback[any] {
			return func(err error, v any) {
				mu.Lock()
				calls[name]++
				mu.Unlock()
				wg.Done()
			}
		}
		_, _ = s.Get(context.Background(), 5, cb("a"), cb("b")).Result()
		wg.Wait()

		if calls["a"] != 1 || calls["b"] != 1 {
			t.Errorf("Expected each callback to run once, got %v", calls)
		}
	})
}

// TestSetRaceWindow documents that Set is a read-then-write: concurrent writers of one
// key each succeed, the final value is one of the written values and no write fails.
func TestSetRaceWindow(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()
		numWriters := 16

		futures := make([]*Future[Void], numWriters)
		for i := range futures {
			futures[i] = s.Set(ctx, "contended", fmt.Sprintf("writer-%d", i))
		}
		for i, f := range futures {
			if err := f.Err(); err != nil {
				t.Fatalf("writer %d failed: %v", i, err)
			}
		}

		v, err := s.Get(ctx, "contended").Result()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		valid := false
		for i := 0; i < numWriters; i++ {
			if v == fmt.Sprintf("writer-%d", i) {
				valid = true
			}
		}
		if !valid {
			t.Errorf("Expected one of the written values, got %v", v)
		}

		// up to numWriters records may exist for the key, at least one does
		n, _ := s.Count(ctx).Result()
		if n < 10 || n > int64(9+numWriters) {
			t.Errorf("Expected between 10 and %d records, got %d", 9+numWriters, n)
		}
	})
}

func TestConcurrentOperations(t *testing.T) {
	forEachEngine(t, func(t *testing.T, s *Storage) {
		ctx := context.Background()
		numWorkers := 8
		perWorker := 25

		var wg sync.WaitGroup
		wg.Add(numWorkers)
		for w := 0; w < numWorkers; w++ {
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					key := fmt.Sprintf("w%d-%d", w, i)
					if err := s.Set(ctx, key, i).Err(); err != nil {
						t.Errorf("Set(%s) failed: %v", key, err)
						return
					}
					if v, err := s.Get(ctx, key).Result(); err != nil || fmt.Sprint(v) != fmt.Sprint(i) {
						t.Errorf("Get(%s) = %v (%v), want %d", key, v, err, i)
						return
					}
				}
			}(w)
		}
		wg.Wait()

		if n, _ := s.Count(ctx).Result(); n != int64(9+numWorkers*perWorker) {
			t.Errorf("Expected %d records, got %d", 9+numWorkers*perWorker, n)
		}
	})
}
