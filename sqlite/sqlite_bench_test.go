package sqlite_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/docq"
	"github.com/fwojciec/docq/sqlite"
	"github.com/stretchr/testify/require"
)

// BenchmarkCacheSet compares write performance between WAL and rollback journal modes
// for a stream of cached downloads.
func BenchmarkCacheSet(b *testing.B) {
	b.Run("rollback_journal", func(b *testing.B) {
		benchmarkCacheSet(b, "DELETE")
	})

	b.Run("wal_mode", func(b *testing.B) {
		benchmarkCacheSet(b, "WAL")
	})
}

func benchmarkCacheSet(b *testing.B, journalMode string) {
	b.Helper()

	dbPath := filepath.Join(b.TempDir(), "bench.db")
	db := sqlite.NewDB(dbPath)
	require.NoError(b, db.Open())

	ctx := context.Background()
	_, err := db.ExecContext(ctx, "PRAGMA journal_mode = "+journalMode)
	require.NoError(b, err)

	defer func() {
		db.Close()
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}()

	cache := sqlite.NewCache(db)
	body := []byte(`<rss><channel><item><title>Lorem ipsum dolor sit amet</title></item></channel></rss>`)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("https://example.com/feed?page=%d", i)
		if _, err := cache.Set(ctx, key, body, docq.Seconds(3600)); err != nil {
			b.Fatal(err)
		}
	}
}
