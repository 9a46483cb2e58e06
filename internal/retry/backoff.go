package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrExhausted is returned when every attempt ran without the operation finishing
var ErrExhausted = errors.New("attempts exhausted")

// Config configures bounded polling with exponential backoff
type Config struct {
	MaxAttempts int           `json:"max_attempts"` // Total attempts including the first (default: 10)
	BaseDelay   time.Duration `json:"base_delay"`   // Delay before the second attempt (default: 500ms)
	MaxDelay    time.Duration `json:"max_delay"`    // Upper bound for any delay (default: 5s)
	Multiplier  float64       `json:"multiplier"`   // Exponential backoff multiplier (default: 1.5)
	Jitter      bool          `json:"jitter"`       // Add up to 10% random jitter (default: true)
}

// Result describes how a polling run went
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	Done          bool          `json:"done"`
}

// DefaultPollConfig returns the configuration used for statement status polling
func DefaultPollConfig() Config {
	return Config{
		MaxAttempts: 10,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  1.5,
		Jitter:      true,
	}
}

// SingleShot returns a configuration that never polls twice
func SingleShot() Config {
	return Config{MaxAttempts: 1}
}

// Until calls op until it reports done, returns an error, the attempts run out
// or ctx is cancelled. op receives the 1-based attempt number. An error from op
// ends polling immediately and is returned unchanged.
func Until(ctx context.Context, config Config, op func(attempt int) (bool, error)) (Result, error) {
	startTime := time.Now()
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	result := Result{}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		done, err := op(attempt)
		if err != nil {
			result.TotalDuration = time.Since(startTime)
			return result, err
		}
		if done {
			result.Done = true
			result.TotalDuration = time.Since(startTime)
			if attempt > 1 {
				log.Debug().
					Int("attempts", attempt).
					Dur("total_duration", result.TotalDuration).
					Msg("Polling finished")
			}
			return result, nil
		}

		if attempt == maxAttempts {
			break
		}

		delay := config.Delay(attempt - 1)
		log.Debug().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Msg("Operation still in progress, waiting before next poll")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.TotalDuration = time.Since(startTime)
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result, ErrExhausted
}

// Delay calculates the wait after the given 0-based attempt using exponential backoff
func (c Config) Delay(attempt int) time.Duration {
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	// baseDelay * multiplier^attempt
	delay := float64(c.BaseDelay) * math.Pow(multiplier, float64(attempt))

	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(c.BaseDelay)
		}
	}

	return time.Duration(delay)
}
