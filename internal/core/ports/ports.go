package ports

import "time"

// Clock returns the current time. Use cases take one so retention windows can
// be tested deterministically.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}
