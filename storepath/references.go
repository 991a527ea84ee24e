// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package storepath

import "lattice.dev/cachestore/internal/sets"

// References represents the set of other store objects that a store object
// contains pointers to (its "reference closure" edges).
// The zero value is an empty set.
type References struct {
	// Self is true if the store object contains one or more references to itself.
	Self bool
	// Others holds the paths of other store objects that the store object references.
	Others sets.Sorted[Path]
}

// IsEmpty reports whether refs represents the empty set.
func (refs References) IsEmpty() bool {
	return !refs.Self && refs.Others.Len() == 0
}

// Clone returns a deep copy of refs.
func (refs References) Clone() References {
	return References{
		Self:   refs.Self,
		Others: *refs.Others.Clone(),
	}
}
