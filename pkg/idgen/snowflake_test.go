package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestNewSnowflakeRejectsWorkerOutOfRange(t *testing.T) {
	for _, id := range []int64{-1, maxWorkerID + 1} {
		if _, err := NewSnowflake(id); err == nil {
			t.Errorf("NewSnowflake(%d) accepted an invalid worker id", id)
		}
	}
}

func TestGenerateIsUniqueAcrossGoroutines(t *testing.T) {
	s, err := NewSnowflake(7)
	if err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 2000
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, s.Generate())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}

func TestReferenceNoPrefix(t *testing.T) {
	ref := StatementNo()
	if !strings.HasPrefix(ref, PrefixStatement) {
		t.Errorf("StatementNo() = %q, want prefix %q", ref, PrefixStatement)
	}
	if a, b := TransactionNo(), TransactionNo(); a == b {
		t.Errorf("consecutive transaction numbers collide: %s", a)
	}
}
