// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package batch

import (
	"context"
	"log/slog"
	"time"
)

// maxRetryDelay caps the backoff between two write attempts.
const maxRetryDelay = 10 * time.Second

// RetryWithBackoff runs write until it succeeds, maxAttempts is reached or
// ctx is done. The delay starts at baseDelay and doubles after every failed
// attempt, up to maxRetryDelay.
// Returns the error from the last attempt if all attempts fail.
func RetryWithBackoff(ctx context.Context, logger *slog.Logger, write func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = write()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("write succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if attempt == maxAttempts {
			break
		}
		logger.Debug("write failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(delay*2, maxRetryDelay)
	}

	return lastErr
}
