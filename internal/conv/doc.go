// Package conv converts between integer types with overflow checks, for
// sizes that arrive from configuration files or disk.
package conv
