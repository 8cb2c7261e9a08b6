// Package mmap maps sealed segment files read-only into memory.
//
// Sealed segments never change again, so archiving and scanning them can
// work on the mapped bytes directly instead of copying through read calls.
//
//	m, err := mmap.Open(path)
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix builds use mmap(2) and madvise(2). Windows builds use
// CreateFileMapping and MapViewOfFile, and Advise is a no-op there.
//
// A Mapping is safe for concurrent reads. Close is idempotent, but the
// slice returned by Bytes must not be used after it returns.
package mmap
