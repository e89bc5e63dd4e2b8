package testing

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/docstore"
)

// RunDocStoreBenchmarks runs all benchmarks for a docstore engine
func RunDocStoreBenchmarks(b *testing.B, name string, factory ConnectionFactory) {

	b.Run("Insert", func(b *testing.B) {
		benchmarkInsert(b, factory)
	})

	b.Run("Update", func(b *testing.B) {
		benchmarkUpdate(b, factory)
	})

	b.Run("FindOne", func(b *testing.B) {
		benchmarkFindOne(b, factory)
	})

	b.Run("FindOne(miss)", func(b *testing.B) {
		benchmarkFindOneMiss(b, factory)
	})

	b.Run("FindOneAndDelete", func(b *testing.B) {
		benchmarkFindOneAndDelete(b, factory)
	})

	b.Run("Count", func(b *testing.B) {
		benchmarkCount(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory)
	})
}

// setupBenchmark opens a connection with one collection holding numKeys records
func setupBenchmark(b *testing.B, factory ConnectionFactory, numKeys int) docstore.Collection {
	conn := factory(b, time.Now)
	b.Cleanup(func() {
		closeConn(b, conn)
	})

	col := mustDefine(b, conn, uniqueName("bench"), defaultSchema())
	for i := 0; i < numKeys; i++ {
		mustSave(b, col, &docstore.Record{Key: fmt.Sprintf("bench-key-%d", i), Value: fmt.Sprintf("bench-value-%d", i)})
	}
	return col
}

// benchmarkInsert tests the performance of inserting new records
func benchmarkInsert(b *testing.B, factory ConnectionFactory) {
	col := setupBenchmark(b, factory, 0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = col.Save(ctx, &docstore.Record{Key: fmt.Sprintf("insert-key-%d", i), Value: i})
	}
}

// benchmarkUpdate tests the performance of overwriting a loaded record
func benchmarkUpdate(b *testing.B, factory ConnectionFactory) {
	col := setupBenchmark(b, factory, 1)
	ctx := context.Background()

	rec, err := col.FindOne(ctx, "bench-key-0")
	if err != nil || rec == nil {
		b.Fatalf("FindOne failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec.Value = i
		_ = col.Save(ctx, rec)
	}
}

// benchmarkFindOne tests the performance of lookups of existing keys
func benchmarkFindOne(b *testing.B, factory ConnectionFactory) {
	numKeys := 1000
	col := setupBenchmark(b, factory, numKeys)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = col.FindOne(ctx, fmt.Sprintf("bench-key-%d", counter%numKeys))
			counter++
		}
	})
}

// benchmarkFindOneMiss tests the performance of lookups of missing keys
func benchmarkFindOneMiss(b *testing.B, factory ConnectionFactory) {
	col := setupBenchmark(b, factory, 1000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = col.FindOne(ctx, fmt.Sprintf("missing-key-%d", counter))
			counter++
		}
	})
}

// benchmarkFindOneAndDelete tests the performance of removing records
func benchmarkFindOneAndDelete(b *testing.B, factory ConnectionFactory) {
	col := setupBenchmark(b, factory, 0)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		_ = col.Save(ctx, &docstore.Record{Key: fmt.Sprintf("delete-key-%d", i), Value: i})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = col.FindOneAndDelete(ctx, fmt.Sprintf("delete-key-%d", i))
	}
}

// benchmarkCount tests the performance of counting a populated collection
func benchmarkCount(b *testing.B, factory ConnectionFactory) {
	col := setupBenchmark(b, factory, 1000)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = col.Count(ctx)
	}
}

// benchmarkMixedUsage tests a realistic read-heavy mix of operations
func benchmarkMixedUsage(b *testing.B, factory ConnectionFactory) {
	numKeys := 1000
	col := setupBenchmark(b, factory, numKeys)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%numKeys)

			// 70% read, 20% write, 10% delete
			switch r := rnd.Float32(); {
			case r < .7:
				_, _ = col.FindOne(ctx, key)
			case r < .9:
				rec, _ := col.FindOne(ctx, key)
				if rec == nil {
					rec = &docstore.Record{Key: key}
				}
				rec.Value = counter
				_ = col.Save(ctx, rec)
			default:
				_, _ = col.FindOneAndDelete(ctx, key)
			}

			counter++
		}
	})
}
