package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pety02/hotelreservation/internal/logger"
	"github.com/pety02/hotelreservation/internal/storage"
)

const maxLineSize = 4 << 20

type Config struct {
	L    *logger.Logger
	Path string
}

// Store keeps records of one type as newline-delimited JSON in a single file.
// Writes go to a temporary file in the same directory which is then renamed over the
// store, so a crash mid-write leaves either the old or the new contents.
type Store[T storage.Record] struct {
	mu   sync.Mutex
	l    *logger.Logger
	path string
}

func New[T storage.Record](conf Config) (*Store[T], error) {
	if err := os.MkdirAll(filepath.Dir(conf.Path), 0o755); err != nil { //nolint:gomnd
		return nil, fmt.Errorf("create store dir for %s: %w", conf.Path, err)
	}

	f, err := os.OpenFile(conf.Path, os.O_CREATE|os.O_RDONLY, 0o644) //nolint:gomnd
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", conf.Path, err)
	}

	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close store %s: %w", conf.Path, err)
	}

	//nolint:exhaustruct
	return &Store[T]{
		l:    conf.L,
		path: conf.Path,
	}, nil
}

func (s *Store[T]) Path() string {
	return s.path
}

func (s *Store[T]) ReadAll(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readAll(ctx)
}

func (s *Store[T]) MergeAndSave(ctx context.Context, records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	return s.write(ctx, storage.Merge(existing, records))
}

func (s *Store[T]) Remove(ctx context.Context, ids ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	return s.write(ctx, storage.Without(existing, ids...))
}

func (s *Store[T]) readAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	var records []T

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		record, err := storage.DecodeLine[T](line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, lineNo, err)
		}

		records = append(records, record)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.path, err)
	}

	return records, nil
}

func (s *Store[T]) write(ctx context.Context, records []T) (err error) {
	if err = ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", s.path, err)
	}

	defer func() {
		if err == nil {
			return
		}

		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.l.LogErrorf("Could not remove temp file %s: %v", tmp.Name(), rmErr.Error())
		}
	}()

	w := bufio.NewWriter(tmp)

	for _, record := range records {
		line, err := storage.EncodeLine(record)
		if err != nil {
			_ = tmp.Close()

			return fmt.Errorf("write %s: %w", s.path, err)
		}

		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}

	if err = w.Flush(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("flush %s: %w", tmp.Name(), err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	return nil
}
