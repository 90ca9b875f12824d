// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "time"

// Default reconnect timing. The attempt counter is incremented before
// each scheduled delay, so the first retry waits base*2 and the delay
// doubles per attempt until it hits the cap. With the defaults the
// sequence is 2s, 4s, 8s, 16s, 30s.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 30 * time.Second

	// DefaultMaxAttempts bounds consecutive reconnect attempts. Once
	// exhausted the session goes terminally disconnected.
	DefaultMaxAttempts = 5
)

// BackoffDelay computes the reconnect delay base*2^attempt, capped.
// Attempt is the already-incremented counter, so the first retry
// (attempt 1) waits twice the base.
//
// # Inputs
//   - attempt: reconnect attempt counter, incremented before scheduling.
//   - base: backoff base duration.
//   - cap: upper bound on the delay.
//
// # Outputs
//   - time.Duration: how long to wait before dialing again.
func BackoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
