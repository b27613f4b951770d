// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

/*
Package cache provides bounded, keyed time-window counters.

WindowCounter counts occurrences per key inside a fixed window that starts
at the key's first increment. When the window ends the key's count resets.
The number of tracked keys is bounded: inserting into a full counter first
drops expired windows and then evicts the oldest window.

Counters are plain values injected where needed, so tests can isolate
instances and control time:

	counter := cache.NewWindowCounter(time.Hour, 10000)
	if counter.Increment("org-1/user-1") == 1 {
	    // first occurrence in this window
	}

A counter is also a suture service: Serve sweeps expired keys periodically
until its context is canceled.
*/
package cache
