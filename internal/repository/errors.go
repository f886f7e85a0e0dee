// Package repository defines the counter store and the sentinel errors it
// returns. Handlers use these values to tell a broken store apart from an
// unreachable one, although both end up as a 500 for the client.
package repository

import "errors"

// ErrCounterMissing is returned when the singleton counter row does not
// exist. It means the store was never initialized or was tampered with; the
// repository never substitutes zero for a missing row.
var ErrCounterMissing = errors.New("counter row missing")

// ErrUnsupportedDriver is returned by NewCounterRepo for a driver it has no
// SQL dialect for.
var ErrUnsupportedDriver = errors.New("unsupported database driver")
