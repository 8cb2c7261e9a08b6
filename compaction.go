package partstore

import "context"

// Compactor reclaims space taken by overwritten values. It receives the
// current segment inventory.
type Compactor interface {
	Compact(ctx context.Context, segments []SegmentInfo) error
}

// CompactorFunc adapts a function to Compactor.
type CompactorFunc func(ctx context.Context, segments []SegmentInfo) error

// Compact implements Compactor.
func (f CompactorFunc) Compact(ctx context.Context, segments []SegmentInfo) error {
	return f(ctx, segments)
}

// noopCompactor is the built-in hook. It reclaims nothing.
type noopCompactor struct{}

func (noopCompactor) Compact(context.Context, []SegmentInfo) error { return nil }

// Compact hands the segment inventory to the configured Compactor.
// It returns ErrCompactionDisabled unless the Storage was opened with
// WithCompaction(true).
func (s *Storage) Compact(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if !s.opts.compaction {
		return ErrCompactionDisabled
	}
	s.logger.DebugContext(ctx, "compaction requested")
	return s.opts.compactor.Compact(ctx, s.Segments())
}
