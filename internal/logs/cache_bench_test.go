package logs

import (
	"testing"
	"time"

	"github.com/kyleking/gh-actionboard/internal/cache"
)

func newBenchCache(b *testing.B) *Cache {
	b.Helper()
	store, err := cache.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatalf("NewFileStore failed: %v", err)
	}
	return NewCache(store)
}

func benchLogs(steps, entries int) *RunLogs {
	runLogs := NewRunLogs("test", "main")
	for i := 0; i < steps; i++ {
		runLogs.AddStep(&StepLogs{
			StepIndex: i,
			Entries:   make([]LogEntry, entries),
		})
	}
	return runLogs
}

func BenchmarkCache_Put(b *testing.B) {
	c := newBenchCache(b)
	runLogs := benchLogs(100, 100)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = c.Put(RunKey("acme/api", int64(i), 1), runLogs, time.Hour)
	}
}

func BenchmarkCache_Get(b *testing.B) {
	c := newBenchCache(b)
	key := RunKey("acme/api", 123, 1)
	_ = c.Put(key, benchLogs(100, 100), time.Hour)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		c.Get(key)
	}
}

func BenchmarkCache_ConcurrentAccess(b *testing.B) {
	c := newBenchCache(b)
	runLogs := benchLogs(50, 50)
	key := RunKey("acme/api", 123, 1)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = c.Put(key, runLogs, time.Hour)
			c.Get(key)
		}
	})
}

func BenchmarkCache_Prune(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c := NewCache(cache.NewMemoryStore())
		for j := 0; j < 50; j++ {
			ttl := time.Hour
			if j%2 == 0 {
				ttl = -time.Second
			}
			_ = c.Put(RunKey("acme/api", int64(j), 1), NewRunLogs("test", "main"), ttl)
		}
		b.StartTimer()
		_ = c.Prune()
	}
}

func BenchmarkCache_PutGet_LargeLogs(b *testing.B) {
	c := newBenchCache(b)
	runLogs := benchLogs(200, 500)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		key := RunKey("acme/api", int64(i%100), 1)
		_ = c.Put(key, runLogs, time.Hour)
		c.Get(key)
	}
}
