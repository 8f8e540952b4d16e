package txmap

import "github.com/halvardlabs/txmap/internal/hashtable"

// ErrReserveOnNonEmpty is returned by (*Map).Reserve when the map already
// holds at least one element.
var ErrReserveOnNonEmpty = hashtable.ErrReserveOnNonEmpty
