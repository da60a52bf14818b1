// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"errors"
	"fmt"
)

// ErrCorruption is returned (usually wrapped with positional detail) when
// a structural invariant of an on-disk store does not hold, such as a
// hash-table chain that links an item to itself or a header that claims
// more elements than the file can contain.  Callers must treat the store
// as unusable.
var ErrCorruption = errors.New("store corruption detected")

// ErrOutOfBounds is returned when a record index or slab position falls
// outside the committed region of its file.
var ErrOutOfBounds = errors.New("position out of bounds")

// corruptionError wraps ErrCorruption with file-positional detail.
func corruptionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorruption, fmt.Sprintf(format, args...))
}
