package partstore

import (
	"context"
	"errors"
	"fmt"
)

// Close flushes pending entries, closes every segment and releases the
// partition lock. Closing a closed Storage is a no-op.
func (s *Storage) Close(ctx context.Context) error {
	if s == nil || s.closed {
		return nil
	}

	var errs []error
	if err := s.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	s.closed = true

	if err := s.segments.Close(); err != nil {
		errs = append(errs, fmt.Errorf("partstore: close segments: %w", err))
	}
	if err := s.dir.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("partstore: unlock: %w", err))
	}
	return errors.Join(errs...)
}

// Destroy closes the Storage without flushing and deletes the partition
// directory with every segment in it.
func (s *Storage) Destroy() error {
	if !s.closed {
		s.closed = true
		if err := s.segments.Close(); err != nil {
			return fmt.Errorf("partstore: close segments: %w", err)
		}
	}
	if err := s.dir.RemoveAll(); err != nil {
		return fmt.Errorf("partstore: remove directory: %w", err)
	}
	return nil
}
