// Package serviceerr holds the sentinel errors shared across packages.
package serviceerr

import "errors"

// ErrNotFound reports a session that does not exist or has expired; the two
// cases are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("not found")
