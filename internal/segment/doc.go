// Package segment manages the numbered append-only files of a partition.
//
// A [Segment] wraps one open file of a given kind and id. The [Manager]
// tracks every segment of every kind, reports where the next append of a
// kind will land and rotates to a fresh segment once the active one
// reaches the size limit.
//
// Rotation happens only when the active segment is resolved for an append
// (see [Manager.Latest]), so a segment may exceed the limit by up to one
// flush.
package segment
