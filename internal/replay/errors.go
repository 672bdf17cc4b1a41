package replay

import "errors"

// ErrInvalidOrdering is returned under OrderingStrict when a tick's
// timestamp precedes the previous tick's.
var ErrInvalidOrdering = errors.New("ticks are not in non-decreasing time order")

// ErrSourceFailed wraps hard failures of a price source.
var ErrSourceFailed = errors.New("price source failed")
