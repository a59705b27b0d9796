// Package poll synchronizes assertions with asynchronous container behavior.
package poll

import "time"

// sleep is replaced in tests.
var sleep = time.Sleep

// WaitForCondition samples condition until it returns true or timeout
// elapses. When condition is false and bail (which may be nil) returns
// true, waiting stops early. Between samples it sleeps a tenth of the
// timeout, or the remaining time if that is shorter. condition is always
// sampled at least once.
func WaitForCondition(condition func() bool, timeout time.Duration, bail func() bool) bool {
	start := time.Now()
	step := timeout / 10

	for {
		if condition() {
			return true
		}
		if bail != nil && bail() {
			return false
		}

		remaining := timeout - time.Since(start)
		if remaining <= 0 {
			return false
		}
		if step > remaining {
			sleep(remaining)
		} else {
			sleep(step)
		}
		if time.Since(start) >= timeout {
			return condition()
		}
	}
}

// Retry calls predicate up to attempts times, interval apart, and reports
// whether any call returned true.
func Retry(attempts int, interval time.Duration, predicate func() bool) bool {
	for i := 0; i < attempts; i++ {
		if predicate() {
			return true
		}
		if i < attempts-1 {
			sleep(interval)
		}
	}
	return false
}
