package sla

import "time"

// Timer is an armed callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the scheduler so checkpoint math can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns a Clock backed by package time.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
