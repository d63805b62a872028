package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pety02/hotelreservation/internal/logger"
	"github.com/pety02/hotelreservation/internal/storage"
)

type Config struct {
	L    *logger.Logger
	Name string
}

// DB holds the encoded records of one type in memory. Records are kept encoded so that
// callers never share maps or slices with the store, which matches the file store.
type DB[T storage.Record] struct {
	mu    sync.Mutex
	l     *logger.Logger
	name  string
	lines [][]byte

	writes      int
	failAfter   int
	failErr     error
	failEnabled bool
}

func New[T storage.Record](conf Config) *DB[T] {
	//nolint:exhaustruct
	return &DB[T]{
		l:    conf.L,
		name: conf.Name,
	}
}

// FailWritesAfter lets the next n writes succeed and fails every write after them with err.
// A nil err uses ErrInjectedFailure.
func (db *DB[T]) FailWritesAfter(n int, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err == nil {
		err = ErrInjectedFailure
	}

	db.failEnabled = true
	db.failAfter = db.writes + n
	db.failErr = err
}

func (db *DB[T]) ResetFailures() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.failEnabled = false
	db.failErr = nil
}

// Writes returns the number of successful writes.
func (db *DB[T]) Writes() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.writes
}

func (db *DB[T]) ReadAll(ctx context.Context) ([]T, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.readAll(ctx)
}

func (db *DB[T]) MergeAndSave(ctx context.Context, records []T) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, err := db.readAll(ctx)
	if err != nil {
		return err
	}

	return db.write(ctx, storage.Merge(existing, records))
}

func (db *DB[T]) Remove(ctx context.Context, ids ...int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, err := db.readAll(ctx)
	if err != nil {
		return err
	}

	return db.write(ctx, storage.Without(existing, ids...))
}

func (db *DB[T]) readAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", db.name, err)
	}

	records := make([]T, 0, len(db.lines))

	for idx, line := range db.lines {
		record, err := storage.DecodeLine[T](line)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", db.name, idx, err)
		}

		records = append(records, record)
	}

	return records, nil
}

func (db *DB[T]) write(ctx context.Context, records []T) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", db.name, err)
	}

	if db.failEnabled && db.writes >= db.failAfter {
		db.l.LogWarnf("Rejecting write to %s: %v", db.name, db.failErr.Error())

		return fmt.Errorf("write %s: %w", db.name, db.failErr)
	}

	lines := make([][]byte, 0, len(records))

	for _, record := range records {
		line, err := storage.EncodeLine(record)
		if err != nil {
			return fmt.Errorf("write %s: %w", db.name, err)
		}

		lines = append(lines, line)
	}

	db.lines = lines
	db.writes++

	return nil
}
