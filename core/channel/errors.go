package channel

import "errors"

// ErrDeliveryFailed is returned when the farmer cannot be reached. The
// scheduler treats it as an implicit decline, not as a run failure.
var ErrDeliveryFailed = errors.New("offer delivery failed")
