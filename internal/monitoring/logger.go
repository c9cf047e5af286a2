// Package monitoring is the logging seam for the feed and drive
// layers: a swappable package-level logger so tests can capture or
// mute the chatter from background IO loops.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, log.Printf by default.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil f mutes logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
