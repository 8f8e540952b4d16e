package hashtable

import "errors"

// ErrReserveOnNonEmpty is returned by (*Map).Reserve when the map already
// holds at least one element (spec §7: reserve-on-nonempty).
var ErrReserveOnNonEmpty = errors.New("hashtable: reserve called on a non-empty map")
