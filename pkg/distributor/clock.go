package distributor

import "time"

// Clock supplies the engine's notion of current time in unix seconds.
// Injected so window-boundary behavior is testable.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 {
	return time.Now().Unix()
}

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock {
	return systemClock{}
}
