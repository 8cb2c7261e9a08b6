// Package fs provides the filesystem abstraction used by the directory and
// segment layers, plus a fault-injecting wrapper for tests.
//
//   - [File]: an open file with read, write, positional read and sync
//   - [FileSystem]: open, stat, list and remove files
//   - [LocalFS]: the os-backed implementation ([Default])
//   - [FaultyFS]: wraps another FileSystem and fails selected operations
//
// Tests inject [FaultyFS] to drive partial flushes and failed reads:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".idx", fs.Fault{FailAfterBytes: 0})
//
// Operations take no context.Context. Local file I/O is not interruptible
// at the syscall level; remote storage goes through the blobstore package.
package fs
