package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/taskstore/internal/testutil"
)

// createTestStore creates a new store backed by a temp-dir database.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createClockedStore returns a store whose clock advances one second per read.
func createClockedStore(t *testing.T) (*Store, *testutil.DeterministicClock) {
	t.Helper()
	clock := testutil.NewDeterministicClock(testutil.DefaultEpoch, time.Second)
	return createTestStore(t, WithClock(clock.Now)), clock
}
